package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/channel"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Register and list chat templates",
	}

	cmd.AddCommand(newTemplateCreateCmd())
	cmd.AddCommand(newTemplateListCmd())
	return cmd
}

func newTemplateCreateCmd() *cobra.Command {
	var (
		configPath  string
		t           channel.Template
		quickReply  []string
		urlButtons  []string
		callButtons []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a chat template for platform review",
		Long: `Submits a chat template for review. Body placeholders are numbered
{{1}}..{{n}} and need one --example per placeholder, in order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			buttons, err := templateButtons(quickReply, urlButtons, callButtons)
			if err != nil {
				return err
			}
			t.Buttons = buttons
			t.Category = strings.ToUpper(t.Category)
			return withApp(cmd, configPath, func(a *app, out io.Writer) error {
				if a.templates == nil {
					return fmt.Errorf("chat templates are not configured (platform.account_id)")
				}
				if t.Language == "" {
					t.Language = a.cfg.Platform.Language
				}
				ctx, cancel := signalContext(cmd)
				defer cancel()
				st, err := a.templates.Create(ctx, t)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Template %s submitted (id %s, status %s)\n", st.Name, st.ID, st.Status)
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&t.Name, "name", "", "template name (lowercase, digits, underscore)")
	cmd.Flags().StringVar(&t.Category, "category", channel.CategoryMarketing, "MARKETING, UTILITY or AUTHENTICATION")
	cmd.Flags().StringVar(&t.Language, "language", "", "language code (default from config)")
	cmd.Flags().StringVar(&t.Header, "header", "", "header text")
	cmd.Flags().StringVar(&t.Body, "body", "", "body text with {{n}} placeholders")
	cmd.Flags().StringArrayVar(&t.Examples, "example", nil, "sample value for the next placeholder (repeatable)")
	cmd.Flags().StringVar(&t.Footer, "footer", "", "footer text")
	cmd.Flags().StringArrayVar(&quickReply, "quick-reply", nil, "quick reply button text (repeatable)")
	cmd.Flags().StringArrayVar(&urlButtons, "url-button", nil, `URL button "text|url" (repeatable)`)
	cmd.Flags().StringArrayVar(&callButtons, "call-button", nil, `phone button "text|+number" (repeatable)`)
	return cmd
}

// templateButtons assembles buttons from the per-type flags.
func templateButtons(quickReply, urls, calls []string) ([]channel.TemplateButton, error) {
	var out []channel.TemplateButton
	for _, text := range quickReply {
		out = append(out, channel.TemplateButton{Type: channel.ButtonQuickReply, Text: text})
	}
	for _, spec := range urls {
		text, target, ok := strings.Cut(spec, "|")
		if !ok {
			return nil, apperr.NewValidation("buttons", fmt.Sprintf("url button %q must be text|url", spec))
		}
		out = append(out, channel.TemplateButton{Type: channel.ButtonURL, Text: text, URL: target})
	}
	for _, spec := range calls {
		text, phone, ok := strings.Cut(spec, "|")
		if !ok {
			return nil, apperr.NewValidation("buttons", fmt.Sprintf("call button %q must be text|number", spec))
		}
		out = append(out, channel.TemplateButton{Type: channel.ButtonPhone, Text: text, PhoneNumber: phone})
	}
	return out, nil
}

func newTemplateListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered chat templates and their review status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, configPath, func(a *app, out io.Writer) error {
				if a.templates == nil {
					return fmt.Errorf("chat templates are not configured (platform.account_id)")
				}
				ctx, cancel := signalContext(cmd)
				defer cancel()
				list, err := a.templates.List(ctx)
				if err != nil {
					return err
				}
				printTemplates(out, list)
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func printTemplates(out io.Writer, list []channel.TemplateStatus) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No templates.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLANGUAGE\tCATEGORY\tSTATUS\tID")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.Name, t.Language, t.Category, t.Status, t.ID)
	}
	w.Flush()
}
