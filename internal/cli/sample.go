package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pulse-events/loadgen/internal/event"
	"github.com/pulse-events/loadgen/internal/random"
)

func newSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print generated events and their schema verdict",
		Long: `Generate events exactly as a run would and print them as JSON, each
followed by the result of validating it against the event schema.`,
		Args: cobra.NoArgs,
		RunE: runSample,
	}

	cmd.Flags().Bool("malformed", false, "Drop one required field from each event")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 picks one)")
	cmd.Flags().IntP("count", "n", 1, "Number of events")
	return cmd
}

func runSample(cmd *cobra.Command, args []string) error {
	malformed, _ := cmd.Flags().GetBool("malformed")
	seed, _ := cmd.Flags().GetUint64("seed")
	count, _ := cmd.Flags().GetInt("count")

	if count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", count)
	}
	if seed == 0 {
		seed = random.NewSeed()
	}

	validator, err := event.NewValidator()
	if err != nil {
		return err
	}
	factory := event.NewFactory(random.New(seed))

	out := cmd.OutOrStdout()
	for i := 0; i < count; i++ {
		ev := factory.Generate(malformed)
		data, err := json.MarshalIndent(ev, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		fmt.Fprintln(out, string(data))

		if err := validator.Validate(data); err != nil {
			if ev.Malformed() {
				fmt.Fprintf(out, "schema: invalid (missing %s)\n", ev.Missing())
			} else {
				fmt.Fprintf(out, "schema: invalid: %v\n", err)
			}
			continue
		}
		fmt.Fprintln(out, "schema: valid")
	}
	return nil
}
