package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-portal/internal/config"
	"github.com/jakechorley/volunteer-portal/pkg/utils"
)

// AuthorizeGoogleCmd creates the authorizeGoogle command
func AuthorizeGoogleCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authorizeGoogle",
		Short: "Authorize the portal to send Gmail and read activity sheets",
		Long: `Runs the OAuth consent flow in the browser and stores the token used by
serve for welcome and join e-mails and by importActivities --sheet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			oauthCfg, err := config.LoadOAuthClient(app.Env)
			if err != nil {
				return fmt.Errorf("failed to load OAuth client config: %w", err)
			}
			oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
			if err != nil {
				return err
			}

			if _, err := utils.AuthorizeWithFlow(app.Ctx, oauthConfig, app.Env, force, app.Logger); err != nil {
				return err
			}

			fmt.Printf("\n✓ Google access authorized for %s\n\n", app.Env)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Ignore any stored token and re-run the consent flow")

	return cmd
}
