// Package main implements pagi, the interactive CLI over the kernel: onboarding,
// self-audit, skill consensus review, and rollback.
//
// The daemon that runs the autonomous heartbeat loop lives in cmd/pagid;
// the two never share a storage path, since bbolt enforces single-writer
// access per file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pagi/internal/collab"
	"pagi/internal/config"
	"pagi/internal/evolution"
	"pagi/internal/kernel"
	"pagi/internal/logging"
	"pagi/internal/manifest"
	"pagi/internal/store"
	"pagi/internal/vault"
)

var (
	verbose    bool
	workspace  string
	configPath string

	cfg     *config.Config
	st      *store.Store
	reg     *manifest.Registry
	runner  *collab.Runner
)

var rootCmd = &cobra.Command{
	Use:   "pagi",
	Short: "pagi - local-first autonomous agent kernel",
	Long: `pagi is a single-host agent kernel: a knowledge store, a skill
manifest firewall, a mental state governor, and a consensus-gated
self-evolution pipeline.

Run a subcommand to interact with a running kernel's storage. Start the
heartbeat daemon separately with pagid.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Use == "pagi" && cmd.CalledAs() == "pagi" {
			return nil
		}
		return bootstrap()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if st != nil {
			_ = st.Close()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := bootstrap(); err != nil {
			return err
		}

		state, err := kernel.OnboardingSequence(st)
		if err != nil {
			return fmt.Errorf("onboarding: %w", err)
		}
		fmt.Println(state.Greeting)
		if !state.HasPeople {
			fmt.Println("No one in KB-07 yet; the governor has no relationship data to weigh.")
		}
		return nil
	},
}

func bootstrap() error {
	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}

	path := configPath
	if path == "" {
		path = filepath.Join(ws, "pagi.yaml")
	}
	loaded, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded

	categories := cfg.Logging.Categories
	if err := logging.Initialize(verbose || cfg.Logging.DebugMode, cfg.Logging.JSONFormat, categories); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		storagePath = filepath.Join(ws, storagePath)
	}
	if err := os.MkdirAll(filepath.Dir(storagePath), 0o755); err != nil {
		return fmt.Errorf("prepare storage dir: %w", err)
	}

	v := vault.FromShadowKeyHex(cfg.ShadowKeyHex)
	st, err = store.Open(storagePath, v)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	manifestDir := filepath.Join(ws, "manifests")
	reg, err = manifest.LoadFromDir(manifestDir)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	var llm collab.LLMGenerator
	if apiKey := os.Getenv("PAGI_GENAI_API_KEY"); apiKey != "" {
		gen, err := collab.NewGenAIGenerator(context.Background(), apiKey, os.Getenv("PAGI_GENAI_MODEL"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: genai generator unavailable: %v\n", err)
		} else {
			llm = gen
		}
	}
	runner = collab.NewRunner(st, llm, nil, nil, cfg.ForgeSafetyEnabled)

	return nil
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run a self-audit over the absurdity log and dead-end index",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := kernel.SelfAudit(st)
		if err != nil {
			return err
		}
		fmt.Printf("%d inconsistencies found\n", report.Count)
		for _, line := range report.TopInconsistencies {
			fmt.Println("  - " + line)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current effective mental state",
	RunE: func(cmd *cobra.Command, args []string) error {
		mental, err := kernel.GetEffectiveMentalState(st, "default")
		if err != nil {
			return err
		}
		fmt.Printf("relational stress: %.2f\nburnout risk: %.2f\ngrace multiplier: %.2f\nphysical load adjustment: %v\n",
			mental.RelationalStress, mental.BurnoutRisk, mental.GraceMultiplier, mental.HasPhysicalLoadAdjustment)
		return nil
	},
}

var (
	proposeSkillID string
	proposeFile    string
	proposeReason  string
)

var consensusCmd = &cobra.Command{
	Use:   "consensus",
	Short: "Run the propose/red-team/approve/apply pipeline on a skill patch",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := os.ReadFile(proposeFile)
		if err != nil {
			return fmt.Errorf("read patch file: %w", err)
		}
		change := collab.ProposedChange{
			SkillID:   proposeSkillID,
			Code:      string(code),
			Rationale: proposeReason,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		result, err := kernel.RunConsensus(ctx, runner, change)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		if !result.Approved {
			os.Exit(1)
		}
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback [skill]",
	Short: "Roll a skill back to its previous applied version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		forge := evolution.NewForge(st, reg, cfg.ProtectedSkills, cfg.SovereignKey)
		version, err := kernel.RollbackSkill(forge, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("rolled back %s to version at %d (%s)\n", args[0], version.TimestampMs, version.Reason)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to pagi.yaml (default: <workspace>/pagi.yaml)")

	consensusCmd.Flags().StringVar(&proposeSkillID, "skill", "", "Skill ID being patched (required)")
	consensusCmd.Flags().StringVar(&proposeFile, "file", "", "Path to the proposed Go source file (required)")
	consensusCmd.Flags().StringVar(&proposeReason, "reason", "", "One-line rationale for the patch")
	consensusCmd.MarkFlagRequired("skill")
	consensusCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(auditCmd, statusCmd, consensusCmd, rollbackCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
