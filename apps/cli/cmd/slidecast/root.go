package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"slidecast/packages/backend/config"
	"slidecast/packages/backend/di"
	"slidecast/packages/backend/logging"
	"slidecast/packages/backend/slide"
)

type app struct {
	v          *viper.Viper
	configPath string
	voice      string
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "slidecast",
		Short:         "Turn slide decks into narrated videos",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("provider", "", "speech provider (stub, openai, http)")
	flags.StringVar(&a.voice, "voice", "", "narrate every slide with this voice (male, female)")
	a.bind(root, "log.level", "log-level")
	a.bind(root, "speech.provider", "provider")

	root.AddCommand(
		newExportCmd(a),
		newWAVCmd(a),
		newDurationsCmd(a),
		newSchemaCmd(),
	)
	return root
}

// bind maps a persistent flag onto a config key. Unset flags keep the
// configured value.
func (a *app) bind(cmd *cobra.Command, key, flag string) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}
	if err := a.v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func (a *app) load() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewConsole(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// session loads configuration, wires dependencies and reads the deck at path.
func (a *app) session(ctx context.Context, path string) (*config.Config, *di.Container, slide.Deck, error) {
	cfg, logger, err := a.load()
	if err != nil {
		return nil, nil, slide.Deck{}, err
	}

	deck, err := slide.LoadDeck(path, cfg.Speech.Language)
	if err != nil {
		return nil, nil, slide.Deck{}, err
	}
	if a.voice != "" {
		if err := deck.ApplyVoice(slide.Voice(a.voice)); err != nil {
			return nil, nil, slide.Deck{}, err
		}
	}

	c, err := di.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, slide.Deck{}, err
	}
	return cfg, c, deck, nil
}

func closeSession(c *di.Container) {
	_ = c.ReleaseCache(context.Background())
	_ = c.Close()
	_ = c.Logger.Sync()
}
