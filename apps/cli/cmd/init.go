package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/hitbrowse/packages/core/config"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new hitbrowse project",
	Long: `Initialize a new hitbrowse project in the current directory.

This creates:
  - hitbrowse.config.json  - Configuration file
  - app.yaml               - Example app definition
  - login.browse.yaml      - Example browse script

Examples:
  hitbrowse init
  hitbrowse init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const exampleApp = `name: example
routes:
  - path: /login
    body: |
      <html><head><title>Login</title></head>
      <body>
        <form action="/session" method="post">
          <input name="user">
          <button type="submit">Sign in</button>
        </form>
      </body></html>

  - method: POST
    path: /session
    setCookies:
      session: "{{form.user}}"
    redirect: /account

  - path: /account
    requireCookie: session
    unauthorized: /login
    body: |
      <html><head><title>Account</title></head>
      <body><h1>Hello {{cookie.session}}</h1></body></html>

  - path: /logout
    clearCookies: [session]
    redirect: /login
`

const exampleScript = `name: login
variables:
  user: ada
steps:
  - name: account requires a session
    visit: /account
    expect:
      url: http://localhost/login
      redirects: [http://localhost/login]
      title: Login

  - name: sign in
    tags: [smoke]
    submit:
      fields:
        user: "{{user}}"
    expect:
      url: http://localhost/account
      cookies: {session: "{{user}}"}
      text: Hello {{user}}
    capture:
      greeting: css:h1

  - name: sign out
    visit: /logout
    expect:
      title: Login
      cookies: {}
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	return writeProject(cmd, cwd, forceInit)
}

func writeProject(cmd *cobra.Command, dir string, force bool) error {
	configFile := filepath.Join(dir, "hitbrowse.config.json")
	appFile := filepath.Join(dir, "app.yaml")
	scriptFile := filepath.Join(dir, "login.browse.yaml")

	if !force {
		for _, f := range []string{configFile, appFile, scriptFile} {
			if _, err := os.Stat(f); err == nil {
				return fmt.Errorf("file already exists: %s (use --force to overwrite)", f)
			}
		}
	}

	if err := config.DefaultConfig().SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(appFile, []byte(exampleApp), 0644); err != nil {
		return fmt.Errorf("failed to create app file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", appFile)

	if err := os.WriteFile(scriptFile, []byte(exampleScript), 0644); err != nil {
		return fmt.Errorf("failed to create example script: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", scriptFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nhitbrowse project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'hitbrowse run login.browse.yaml --app app.yaml' to execute the example script.\n")

	return nil
}
