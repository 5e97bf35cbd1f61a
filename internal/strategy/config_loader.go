package strategy

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"dualinvest-core/internal/valuation"
)

// Config is one strategy entry in the YAML configuration file.
type Config struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Weight     float64        `yaml:"weight"`
	IsActive   bool           `yaml:"is_active"`
	Parameters map[string]any `yaml:"parameters"`
}

// ConfigFile is the top-level YAML structure.
type ConfigFile struct {
	Strategies []Config `yaml:"strategies"`
}

// LoadConfig reads strategy definitions from a YAML file.
func LoadConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	return file.Strategies, nil
}

// Register builds the configured strategies and adds them to the manager.
// Unknown strategy types are logged and skipped.
func Register(m *Manager, configs []Config, v *valuation.Valuator) {
	for _, cfg := range configs {
		minConf := floatParam(cfg.Parameters, "min_confidence", 0)

		var s Strategy
		switch cfg.Type {
		case "dual_investment":
			s = NewDualInvestmentStrategy(v, minConf)
		case "mean_reversion":
			s = NewMeanReversionStrategy(minConf)
		default:
			log.Printf("strategy config: unknown type %q for %s, skipping", cfg.Type, cfg.Name)
			continue
		}

		m.AddStrategy(s, cfg.Weight)
		if !cfg.IsActive {
			if err := m.SetActive(s.Name(), false); err != nil {
				log.Printf("strategy config: deactivate %s: %v", s.Name(), err)
			}
		}
	}
}

// SyncConfigToDB upserts strategy definitions into the database so the
// admin surface and audit queries see the same configuration the process
// was started with.
func SyncConfigToDB(db *sql.DB, configs []Config) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO strategy_configs (name, strategy_type, weight, is_active, parameters, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			strategy_type = excluded.strategy_type,
			weight = excluded.weight,
			is_active = excluded.is_active,
			parameters = excluded.parameters,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, cfg := range configs {
		paramsJSON, err := json.Marshal(cfg.Parameters)
		if err != nil {
			return fmt.Errorf("marshal parameters for strategy %s: %w", cfg.Name, err)
		}
		if _, err := stmt.Exec(cfg.Name, cfg.Type, cfg.Weight, cfg.IsActive, string(paramsJSON)); err != nil {
			return fmt.Errorf("upsert strategy %s: %w", cfg.Name, err)
		}
	}

	return tx.Commit()
}

func floatParam(params map[string]any, key string, fallback float64) float64 {
	if params == nil {
		return fallback
	}
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}
