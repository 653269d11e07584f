package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/phaseflow"
	"github.com/randalmurphal/phaseflow/approval"
	"github.com/randalmurphal/phaseflow/gate"
)

type approveOptions struct {
	token       string
	key         string
	useAgent    bool
	fingerprint string
	issue       bool
	approver    string
}

func newApproveCmd(a *app) *cobra.Command {
	var o approveOptions
	cmd := &cobra.Command{
		Use:   "approve <feature> <phase>",
		Short: "Approve a phase held at awaiting_approval",
		Long: `Approve a phase so the next run can start the following phase.

An approval must be verified. Pass one of:
  --token <jwt>    a token issued with --issue (needs approval.secret)
  --key <file>     sign with an SSH private key listed in the allowed signers
  --agent          sign with a key from ssh-agent

--issue prints a fresh token for the phase instead of approving it, for
handing to a reviewer or posting to the approval webhook.

Approving does not resume the run; run 'phaseflow run' afterwards.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			feature := args[0]
			phase, err := strconv.Atoi(args[1])
			if err != nil || phase < 1 {
				return fmt.Errorf("phase must be a positive number, got %q", args[1])
			}
			return a.withEngine(feature, func(eng *phaseflow.Engine) error {
				return approve(cmd, a, eng, feature, phase, o)
			})
		},
	}
	cmd.Flags().StringVar(&o.token, "token", "", "approval token")
	cmd.Flags().StringVar(&o.key, "key", "", "SSH private key file to sign the approval with")
	cmd.Flags().BoolVar(&o.useAgent, "agent", false, "sign the approval with ssh-agent")
	cmd.Flags().StringVar(&o.fingerprint, "fingerprint", "", "SHA256 fingerprint of the ssh-agent key to use")
	cmd.Flags().BoolVar(&o.issue, "issue", false, "print a new approval token instead of approving")
	cmd.Flags().StringVar(&o.approver, "approver", os.Getenv("USER"), "approver name recorded in issued tokens")
	cmd.MarkFlagsMutuallyExclusive("token", "key", "agent", "issue")
	return cmd
}

func approve(cmd *cobra.Command, a *app, eng *phaseflow.Engine, feature string, phase int, o approveOptions) error {
	f, err := eng.Artifacts().Feature(feature)
	if err != nil {
		return err
	}

	if o.issue {
		if o.approver == "" {
			return errors.New("--issue needs --approver")
		}
		token, err := eng.IssueToken(f.ID, phase, o.approver)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, token)
		return nil
	}

	v, err := eng.Verifier()
	if err != nil {
		return err
	}

	var ev approval.Event
	switch {
	case o.token != "":
		ev, err = v.VerifyToken(o.token)
	case o.key != "":
		var sig string
		if sig, err = approval.SignWithKeyFile(o.key, f.ID, phase); err != nil {
			return err
		}
		ev, err = v.VerifySignature(f.ID, phase, sig)
	case o.useAgent:
		conn, aerr := approval.GetAgent()
		if aerr != nil {
			return aerr
		}
		defer conn.Close()
		var sig string
		if sig, err = approval.SignWithAgent(conn, o.fingerprint, f.ID, phase); err != nil {
			return err
		}
		ev, err = v.VerifySignature(f.ID, phase, sig)
	default:
		return errors.New("approve needs --token, --key or --agent")
	}
	if err != nil {
		return err
	}
	if ev.Feature != f.ID || ev.Phase != phase {
		return fmt.Errorf("%w: token approves %s phase %d, not %s phase %d", gate.ErrWrongFeature, ev.Feature, ev.Phase, f.ID, phase)
	}

	if err := eng.Approve(cmd.Context(), ev); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s\n", green("✓"), ev)
	fmt.Fprintf(a.out, "\nContinue with: phaseflow run %s\n", feature)
	return nil
}
