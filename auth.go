package main

import (
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-upload/internal/gdrive"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize access to Google Drive in the browser",
		Long: `Open the Google consent page in the browser and save the resulting token.

Only files created by gdrive-upload are visible to it (drive.file scope).`,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Remove the saved token",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if !cc.Cfg.HasClientCredentials() {
		return errNoClient
	}

	ctx, stop := stopOnSignal(cmd.Context(), cc.Logger, nil)
	defer stop()
	oauthCfg := gdrive.OAuthConfig(cc.Cfg.ClientID, cc.Cfg.ClientSecret)

	cc.Statusf("Opening the browser to sign in...\n")

	if err := gdrive.LoginWithBrowser(ctx, oauthCfg, cc.Cfg.TokenPath(), openBrowser, cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Login successful.\n")

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := gdrive.Logout(cc.Cfg.TokenPath(), cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Logged out. Pending uploads are kept and resume after the next login.\n")

	return nil
}

// openBrowser starts the platform's URL opener without waiting for it.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}
