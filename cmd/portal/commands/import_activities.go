package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-portal/internal/config"
	"github.com/jakechorley/volunteer-portal/pkg/clients/sheetsclient"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
	"github.com/jakechorley/volunteer-portal/pkg/utils"
)

const defaultSheetRange = "Activities!A:J"

// ImportActivitiesCmd creates the importActivities command
func ImportActivitiesCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "importActivities [file]",
		Short: "Create volunteer activities from a YAML file or a Google Sheet",
		Long: `Reads activity definitions from a YAML file, or with --sheet from a Google
Sheet whose header row names the columns (Title, Start, Max volunteers, ...).
Recurring definitions are expanded into one activity per occurrence.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			sheetID, _ := cmd.Flags().GetString("sheet")
			sheetRange, _ := cmd.Flags().GetString("range")

			if (len(args) == 1) == (sheetID != "") {
				return fmt.Errorf("give either an activity file or --sheet")
			}

			var defs []services.ActivityDefinition
			if sheetID != "" {
				var err error
				defs, err = readSheet(app.Ctx, app, sheetID, sheetRange)
				if err != nil {
					return err
				}
			}

			backend, err := OpenBackend(app.Ctx, app.Cfg, app.Logger)
			if err != nil {
				return fmt.Errorf("failed to open backend: %w", err)
			}
			defer backend.Close()

			var result *services.ImportResult
			if sheetID != "" {
				result, err = services.ImportActivityDefinitions(app.Ctx, backend, defs, dryRun, app.Logger)
			} else {
				var data []byte
				data, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read activity file: %w", err)
				}
				result, err = services.ImportActivities(app.Ctx, backend, data, dryRun, app.Logger)
			}
			if err != nil {
				return err
			}

			printImport(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "Parse and expand without inserting")
	cmd.Flags().String("sheet", "", "Spreadsheet ID to read activities from")
	cmd.Flags().String("range", defaultSheetRange, "Sheet range holding the activities, header row first")

	return cmd
}

func readSheet(ctx context.Context, app *AppContext, sheetID, sheetRange string) ([]services.ActivityDefinition, error) {
	oauthCfg, err := config.LoadOAuthClient(app.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth client config: %w", err)
	}
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, err
	}
	token, err := utils.LoadToken(ctx, oauthConfig, app.Env, app.Logger)
	if err != nil {
		return nil, err
	}

	client, err := sheetsclient.NewClient(ctx, oauthCfg, token, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return client.ListActivityDefinitions(ctx, sheetID, sheetRange)
}

func printImport(w io.Writer, result *services.ImportResult) {
	if result.Inserted {
		fmt.Fprintf(w, "\n✓ Imported %d activities\n\n", len(result.Activities))
	} else {
		fmt.Fprintf(w, "\nDRY RUN: %d activities would be imported\n\n", len(result.Activities))
	}
	for i, a := range result.Activities {
		fmt.Fprintf(w, "  %2d. %s  %s  (%d volunteers, %s)\n",
			i+1,
			a.StartDate.Format("2006-01-02 15:04"),
			a.Title,
			a.Capacity(),
			a.Status,
		)
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintf(w, "\nSkipped %d already imported:\n", len(result.Skipped))
		for _, a := range result.Skipped {
			fmt.Fprintf(w, "   - %s  %s\n", a.StartDate.Format("2006-01-02 15:04"), a.Title)
		}
	}
	fmt.Fprintln(w)
}
