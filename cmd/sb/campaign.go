package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/batch"
	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/channel"
	"github.com/zulandar/switchboard/internal/dispatch"
)

func newCampaignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Send campaigns",
	}

	cmd.AddCommand(newCampaignSMSCmd())
	cmd.AddCommand(newCampaignEmailCmd())
	cmd.AddCommand(newCampaignChatCmd())
	cmd.AddCommand(newCampaignTemplateCmd())
	return cmd
}

// sendFlags are the flags every campaign command shares.
type sendFlags struct {
	configPath string
	csvPath    string
	dryRun     bool
}

func (f *sendFlags) register(cmd *cobra.Command) {
	addConfigFlag(cmd, &f.configPath)
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "recipient list (.csv)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "validate and preview without sending")
	cmd.MarkFlagRequired("csv")
}

func newCampaignSMSCmd() *cobra.Command {
	var (
		f        sendFlags
		message  string
		flash    bool
		priority bool
	)

	cmd := &cobra.Command{
		Use:   "sms",
		Short: "Send a text-message campaign",
		Long: `Sends a text-message campaign. The message is normalized to plain ASCII
and truncated to 160 characters; the recipient list needs a phone column.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			csv, err := batch.Load(f.csvPath)
			if err != nil {
				return err
			}
			draft := channel.SMSDraft{Message: message, Batch: csv, Flash: flash, Priority: priority}
			return sendDraft(cmd, f, draft, false)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&message, "message", "", "message text")
	cmd.Flags().BoolVar(&flash, "flash", false, "send as a flash message")
	cmd.Flags().BoolVar(&priority, "priority", false, "send through the priority route")
	return cmd
}

func newCampaignEmailCmd() *cobra.Command {
	var (
		f          sendFlags
		subject    string
		body       string
		bodyFile   string
		style      string
		bannerURL  string
		bannerPath string
		buttons    []string
	)

	cmd := &cobra.Command{
		Use:   "email",
		Short: "Send an email campaign",
		Long: `Sends an email campaign rendered from a built-in template style.
Buttons are given as "label|url" or "label|url|#rrggbb", up to three.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			csv, err := batch.Load(f.csvPath)
			if err != nil {
				return err
			}
			if bodyFile != "" {
				data, err := os.ReadFile(bodyFile)
				if err != nil {
					return &apperr.FileReadError{Path: bodyFile, Err: err}
				}
				body = string(data)
			}
			tpl := channel.EmailTemplate{Subject: subject, Body: body, Style: style, BannerURL: bannerURL}
			if bannerPath != "" {
				if tpl.Banner, err = batch.Load(bannerPath); err != nil {
					return err
				}
			}
			if tpl.Buttons, err = parseButtons(buttons); err != nil {
				return err
			}
			return sendDraft(cmd, f, channel.EmailDraft{Template: tpl, Batch: csv}, false)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&subject, "subject", "", "email subject")
	cmd.Flags().StringVar(&body, "body", "", "email body text")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "read the body from a file")
	cmd.Flags().StringVar(&style, "style", "", "template style: "+strings.Join(channel.Styles(), ", "))
	cmd.Flags().StringVar(&bannerURL, "banner-url", "", "banner image URL")
	cmd.Flags().StringVar(&bannerPath, "banner", "", "banner image file to inline")
	cmd.Flags().StringArrayVar(&buttons, "button", nil, `call-to-action button "label|url[|#color]" (repeatable)`)
	return cmd
}

// parseButtons parses "label|url[|color]" button specs.
func parseButtons(specs []string) ([]channel.Button, error) {
	var out []channel.Button
	for _, spec := range specs {
		parts := strings.Split(spec, "|")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, apperr.NewValidation("buttons", fmt.Sprintf("button %q must be label|url or label|url|#color", spec))
		}
		b := channel.Button{Label: strings.TrimSpace(parts[0]), URL: strings.TrimSpace(parts[1])}
		if len(parts) == 3 {
			b.Color = strings.TrimSpace(parts[2])
		}
		out = append(out, b)
	}
	return out, nil
}

func newCampaignChatCmd() *cobra.Command {
	var (
		f         sendFlags
		line      string
		subject   string
		message   string
		imagePath string
		eventTag  string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send a chat-line campaign through a linked line",
		RunE: func(cmd *cobra.Command, args []string) error {
			csv, err := batch.Load(f.csvPath)
			if err != nil {
				return err
			}
			draft := channel.ChatDraft{Session: line, Subject: subject, Message: message, Batch: csv, EventTag: eventTag}
			if imagePath != "" {
				if draft.Image, err = batch.Load(imagePath); err != nil {
					return err
				}
			}
			return sendDraft(cmd, f, draft, true)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&line, "session", "", "chat line to send through (default: first connected)")
	cmd.Flags().StringVar(&subject, "subject", "", "campaign subject")
	cmd.Flags().StringVar(&message, "message", "", "message text")
	cmd.Flags().StringVar(&imagePath, "image", "", "promotional image")
	cmd.Flags().StringVar(&eventTag, "event-tag", "", "event tag stored with the campaign")
	return cmd
}

func newCampaignTemplateCmd() *cobra.Command {
	var (
		f        sendFlags
		line     string
		name     string
		language string
		mediaURL string
		subject  string
		eventTag string
	)

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Broadcast an approved chat template",
		RunE: func(cmd *cobra.Command, args []string) error {
			csv, err := batch.Load(f.csvPath)
			if err != nil {
				return err
			}
			draft := channel.TemplateBroadcastDraft{
				Session:      line,
				TemplateName: name,
				Language:     language,
				MediaURL:     mediaURL,
				Subject:      subject,
				Batch:        csv,
				EventTag:     eventTag,
			}
			return sendDraft(cmd, f, draft, true)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&line, "session", "", "chat line to send through (default: first connected)")
	cmd.Flags().StringVar(&name, "name", "", "approved template name")
	cmd.Flags().StringVar(&language, "language", "", "template language (default from config)")
	cmd.Flags().StringVar(&mediaURL, "media-url", "", "header media URL")
	cmd.Flags().StringVar(&subject, "subject", "", "campaign subject")
	cmd.Flags().StringVar(&eventTag, "event-tag", "", "event tag stored with the campaign")
	return cmd
}

// sendDraft previews or dispatches draft. Chat-line drafts load the
// gateway's line list first so a session can be resolved.
func sendDraft(cmd *cobra.Command, f sendFlags, draft channel.Draft, needsLines bool) error {
	return withApp(cmd, f.configPath, func(a *app, out io.Writer) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		if needsLines {
			if err := a.sessions.Init(ctx); err != nil {
				return err
			}
		}

		if f.dryRun {
			p, err := a.dispatcher.Prepare(draft)
			if err != nil {
				return err
			}
			printPreview(out, p)
			return nil
		}

		res, err := a.dispatcher.Dispatch(ctx, draft)
		if err != nil {
			return err
		}
		printResult(out, res)
		return nil
	})
}

func printPreview(out io.Writer, p *channel.Prepared) {
	fmt.Fprintf(out, "Channel:    %s\n", p.Channel)
	fmt.Fprintf(out, "Recipients: %d\n", p.RecipientCount)
	if p.Session != "" {
		fmt.Fprintf(out, "Line:       %s\n", p.Session)
	}
	fmt.Fprintf(out, "Content:\n%s\n", p.Descriptor)
	printWarnings(out, p.Warnings)
}

func printResult(out io.Writer, res *dispatch.Result) {
	c := res.Campaign
	id := c.ID
	if c.Provisional {
		id += " (provisional)"
	}
	fmt.Fprintf(out, "Campaign %s accepted: %s\n", id, channelLabel(c.Channel))
	fmt.Fprintf(out, "Recipients: %d\n", c.RecipientCount)
	if c.Sent+c.Failed > 0 {
		fmt.Fprintf(out, "Sent: %d  Failed: %d\n", c.Sent, c.Failed)
	}
	if res.Message != "" {
		fmt.Fprintf(out, "Gateway: %s\n", res.Message)
	}
	printWarnings(out, res.Warnings)
}

func printWarnings(out io.Writer, warnings []apperr.Warning) {
	for _, w := range warnings {
		fmt.Fprintf(out, "warning [%s]: %s\n", w.Code, w.Message)
	}
}

func channelLabel(ch campaign.Channel) string {
	switch ch {
	case campaign.TextMessage:
		return "SMS"
	case campaign.Email:
		return "Email"
	case campaign.ChatLine:
		return "Chat line"
	}
	return string(ch)
}
