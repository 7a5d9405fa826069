// Package parser reads YAML browse scripts.
//
// A script names a sequence of steps run against one browser session:
//
//	name: sign in
//	variables:
//	  user: ada
//	steps:
//	  - visit: /login
//	    expect:
//	      status: 200
//	  - submit:
//	      form: login
//	      fields: {user: "{{user}}"}
//	    expect:
//	      url: http://localhost/account
//	      cookies: {session: ada}
//	    capture:
//	      greeting: css:h1
//
// The expect block is shorthand for the assert list, which takes any
// subject, operator and value understood by the assertions package.
package parser
