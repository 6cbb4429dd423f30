package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/session"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage chat-line sessions",
	}

	cmd.AddCommand(newSessionStartCmd())
	cmd.AddCommand(newSessionConfirmCmd())
	cmd.AddCommand(newSessionLogoutCmd())
	cmd.AddCommand(newSessionListCmd())
	return cmd
}

func newSessionStartCmd() *cobra.Command {
	var (
		configPath string
		method     string
		phone      string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Link a device to a chat line",
		Long: `Starts linking a device to the named chat line and prints the QR payload
or pairing code to enter on the device. Once the device shows the line as
linked, answer the prompt to mark it connected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := session.ParseMethod(method)
			if err != nil {
				return err
			}
			return withApp(cmd, configPath, func(a *app, out io.Writer) error {
				return runSessionStart(cmd, a, out, args[0], m, phone, yes)
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&method, "method", "m", string(session.MethodQR), "link method: qr or pairing-code")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number for pairing-code linking")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "mark the line connected without prompting")
	return cmd
}

func runSessionStart(cmd *cobra.Command, a *app, out io.Writer, name string, method session.Method, phone string, yes bool) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	if err := a.sessions.Init(ctx); err != nil {
		return err
	}
	s, err := a.sessions.Initiate(ctx, name, method, phone)
	if err != nil {
		return err
	}
	if s.Active() {
		fmt.Fprintf(out, "Line %s is already connected\n", s.Name)
		return nil
	}

	switch s.CredentialKind {
	case session.CredentialCode:
		fmt.Fprintf(out, "Pairing code for %s: %s\n", s.Name, s.Credential)
	default:
		fmt.Fprintf(out, "QR payload for %s:\n%s\n", s.Name, s.Credential)
	}

	ok, err := confirm(cmd, "Has the device finished linking?", yes)
	if err != nil {
		if errors.Is(err, errNotInteractive) {
			fmt.Fprintf(out, "Line %s is pending; run `sb session confirm %s` once it is linked\n", s.Name, s.Name)
			return nil
		}
		return err
	}
	if !ok {
		fmt.Fprintf(out, "Line %s left pending\n", s.Name)
		return nil
	}
	s, err = a.sessions.AcknowledgeManualConfirmation(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Line %s is %s\n", s.Name, s.State)
	return nil
}

func newSessionConfirmCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "confirm <name>",
		Short: "Check that the gateway reports a line as connected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, configPath, func(a *app, out io.Writer) error {
				ctx, cancel := signalContext(cmd)
				defer cancel()
				if err := a.sessions.Init(ctx); err != nil {
					return err
				}
				s := a.sessions.Get(args[0])
				if !s.Active() {
					return fmt.Errorf("line %s is not connected on the gateway", args[0])
				}
				fmt.Fprintf(out, "Line %s is connected\n", s.Name)
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newSessionLogoutCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "logout <name>",
		Short: "Log a chat line out",
		Long:  "Logs the named chat line out of the gateway. Campaigns in flight through the line are cancelled.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := confirm(cmd, fmt.Sprintf("Log out %s? Campaigns in flight through it will be cancelled.", args[0]), yes)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			return withApp(cmd, configPath, func(a *app, out io.Writer) error {
				ctx, cancel := signalContext(cmd)
				defer cancel()
				if err := a.sessions.Init(ctx); err != nil {
					return err
				}
				if err := a.sessions.Logout(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Line %s logged out\n", args[0])
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chat lines known to the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, configPath, func(a *app, out io.Writer) error {
				ctx, cancel := signalContext(cmd)
				defer cancel()
				if err := a.sessions.Init(ctx); err != nil {
					return err
				}
				printSessions(out, a.sessions.List())
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func printSessions(out io.Writer, sessions []session.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No chat lines.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tPHONE\tVERIFIED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", s.Name, s.State, s.Phone, s.Verified)
	}
	w.Flush()
}
