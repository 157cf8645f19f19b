package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"keepaway/internal/sim"
	"keepaway/pkg/keepaway"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run writes results to out only after a command has fully succeeded.
func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageError("missing command or input path")
	}

	switch args[0] {
	case "solve":
		return runSolve(ctx, args[1:], out)
	case "simulate":
		return runSimulate(ctx, args[1:], out)
	case "validate":
		return runValidate(ctx, args[1:], out)
	case "runs":
		return runRuns(ctx, args[1:], out)
	default:
		return runSolve(ctx, args, out)
	}
}

func runSolve(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := singlePath(fs, "solve")
	if err != nil {
		return err
	}

	sess, err := common.open(fs)
	if err != nil {
		return err
	}
	defer sess.close()

	summary, err := sess.client.Solve(ctx, keepaway.SolveRequest{
		Input:       keepaway.Input{Path: path},
		DivideFloor: sess.cfg.divideFloorPolicy(),
		ModulusOnly: sess.cfg.modulusOnlyPolicy(),
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "%d\n%d\n", summary.DivideFloor.Product, summary.ModulusOnly.Product)
	return err
}

func runSimulate(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	common := addCommonFlags(fs)
	policyName := fs.String("policy", "divide", "relief policy: divide|modulus")
	rounds := fs.Int("rounds", 0, "rounds to simulate (0 uses the configured count)")
	every := fs.Int("every", 0, "also report after round 1 and every N rounds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rounds < 0 {
		return errors.New("simulate requires --rounds >= 0")
	}
	if *every < 0 {
		return errors.New("simulate requires --every >= 0")
	}
	path, err := singlePath(fs, "simulate")
	if err != nil {
		return err
	}
	base, err := sim.PolicyByName(*policyName)
	if err != nil {
		return err
	}

	sess, err := common.open(fs)
	if err != nil {
		return err
	}
	defer sess.close()

	policy := sess.cfg.policyFor(base)
	if *rounds > 0 {
		policy.Rounds = *rounds
	}

	var buf bytes.Buffer
	summary, err := sess.client.Simulate(ctx, keepaway.SimulateRequest{
		Input:  keepaway.Input{Path: path},
		Policy: policy,
		Every:  *every,
		OnRound: func(s sim.RoundSnapshot) {
			if s.Round == policy.Rounds {
				return
			}
			writeInspections(&buf, s.Round, s.AgentIDs, s.Inspections)
		},
	})
	if err != nil {
		return err
	}
	writeInspections(&buf, summary.Rounds, summary.AgentIDs, summary.Inspections)
	fmt.Fprintf(&buf, "policy=%s rounds=%s product=%d\n", summary.Policy, humanize.Comma(int64(summary.Rounds)), summary.Product)

	_, err = out.Write(buf.Bytes())
	return err
}

// writeInspections prints one line per agent in the puzzle's wording,
// labelled with the declared ordinals.
func writeInspections(w io.Writer, round int, ids []int, inspections []uint64) {
	fmt.Fprintf(w, "== After round %s ==\n", humanize.Comma(int64(round)))
	for i, count := range inspections {
		id := i
		if i < len(ids) {
			id = ids[i]
		}
		fmt.Fprintf(w, "Monkey %d inspected items %d times.\n", id, count)
	}
	fmt.Fprintln(w)
}

func runValidate(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	common := addCommonFlags(fs)
	printCanonical := fs.Bool("print", false, "echo the troop in canonical form")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := singlePath(fs, "validate")
	if err != nil {
		return err
	}

	sess, err := common.open(fs)
	if err != nil {
		return err
	}
	defer sess.close()

	summary, err := sess.client.Validate(ctx, keepaway.Input{Path: path})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if *printCanonical {
		buf.WriteString(summary.Canonical)
		buf.WriteString("\n")
	}
	modulus := commaUint(summary.Modulus)
	if summary.ModulusOverflow {
		modulus = "unavailable (divisor product overflows uint64; modulus policy cannot run)"
	}
	fmt.Fprintf(&buf, "valid agents=%d items=%d modulus=%s\n", summary.Agents, summary.Items, modulus)
	_, err = out.Write(buf.Bytes())
	return err
}

func runRuns(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	if fs.NArg() != 0 {
		return usageError(fmt.Sprintf("runs takes no arguments, got %q", strings.Join(fs.Args(), " ")))
	}

	sess, err := common.open(fs)
	if err != nil {
		return err
	}
	defer sess.close()

	items, err := sess.client.Runs(ctx, keepaway.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		_, err = fmt.Fprintln(out, "no runs found")
		return err
	}

	var buf bytes.Buffer
	for _, item := range items {
		fmt.Fprintf(&buf, "run_id=%s created_at=%s policy=%s rounds=%s product=%s input=%s digest=%.12s\n",
			item.RunID,
			item.CreatedAtUTC,
			item.Policy,
			humanize.Comma(int64(item.Rounds)),
			commaUint(item.Product),
			inputLabel(item.InputPath),
			item.InputDigest,
		)
	}
	_, err = out.Write(buf.Bytes())
	return err
}

func singlePath(fs *flag.FlagSet, command string) (string, error) {
	if fs.NArg() != 1 {
		return "", usageError(fmt.Sprintf("%s requires exactly one input path", command))
	}
	path := strings.TrimSpace(fs.Arg(0))
	if path == "" {
		return "", usageError(fmt.Sprintf("%s requires a non-empty input path", command))
	}
	return path, nil
}

func commaUint(v uint64) string {
	return humanize.BigComma(new(big.Int).SetUint64(v))
}

func inputLabel(path string) string {
	if path == "" {
		return "-"
	}
	return path
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: keepawayctl [solve] <path> | keepawayctl <simulate|validate|runs> [flags] [path]", msg)
}
