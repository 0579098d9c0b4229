package commands

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/scholar/am"
	"github.com/teranos/scholar/db"
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/imagescore"
	"github.com/teranos/scholar/logger"
	"github.com/teranos/scholar/rulebook"
)

// loadConfig loads and validates the configuration cascade.
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// loadModel compiles the configured rulebook, or the built-in one when
// path is empty. A non-empty override replaces cfg.Rulebook.Path.
func loadModel(cfg *am.Config, override string) (*rulebook.Model, error) {
	path := cfg.Rulebook.Path
	if override != "" {
		path = override
	}
	if path == "" {
		return rulebook.Build(rulebook.Default(), cfg.EngineSettings(), "builtin")
	}
	f, err := rulebook.Load(path)
	if err != nil {
		return nil, err
	}
	return rulebook.Build(f, cfg.EngineSettings(), path)
}

// openDatabase opens and migrates the history database. An empty path in
// both the flag and the config returns a nil database.
func openDatabase(cfg *am.Config, override string) (*sql.DB, error) {
	path := cfg.Database.Path
	if override != "" {
		path = override
	}
	if path == "" {
		return nil, nil
	}
	database, err := db.OpenWithMigrations(path, logger.Logger.Named("db"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	return database, nil
}

// newScorer returns the HTTP classifier when an endpoint is configured,
// otherwise the Neutral scorer.
func newScorer(cfg *am.Config, log *zap.SugaredLogger) (imagescore.Scorer, error) {
	if cfg.Classifier.Endpoint == "" {
		return imagescore.Neutral{}, nil
	}
	scorer, err := imagescore.NewHTTPScorer(cfg.ClassifierHTTPConfig(), log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to configure house photo classifier")
	}
	return scorer, nil
}
