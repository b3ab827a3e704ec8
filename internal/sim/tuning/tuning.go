package tuning

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Era gate modes.
const (
	GateFractional = "fractional"
	GateExplicit   = "explicit"
)

// Tuning holds every numeric balance constant. Values are plain data and are
// never mutated after Load; per-game adjustments live in the game state.
type Tuning struct {
	Probabilities     map[string]float64 `yaml:"probabilities" validate:"dive,gte=0,lte=1"`
	HireGrowthFactor  float64            `yaml:"hire_growth_factor" validate:"gte=1"`
	Feeding           Feeding            `yaml:"feeding"`
	EraGate           EraGate            `yaml:"era_gate"`
	Events            Events             `yaml:"events"`
	AutoSaveSeconds   int                `yaml:"auto_save_seconds" validate:"gte=0"`
	SaveSlot          string             `yaml:"save_slot" validate:"required"`
	StartingResources map[string]float64 `yaml:"starting_resources" validate:"dive,gte=0"`
}

type Feeding struct {
	FoodResource   string  `yaml:"food_resource" validate:"required"`
	FoodPerWorker  float64 `yaml:"food_per_worker" validate:"gte=0"`
	HungryFactor   float64 `yaml:"hungry_factor" validate:"gte=0,lte=1"`
	StarvingFactor float64 `yaml:"starving_factor" validate:"gte=0,lte=1"`
	IntervalMs     int     `yaml:"interval_ms" validate:"gte=0"`
}

type EraGate struct {
	Mode               string  `yaml:"mode" validate:"oneof=fractional explicit"`
	PopulationFraction float64 `yaml:"population_fraction"`
	DiversityFraction  float64 `yaml:"diversity_fraction"`
	UpgradeFraction    float64 `yaml:"upgrade_fraction"`
}

type Events struct {
	BaseChance          float64 `yaml:"base_chance" validate:"gte=0,lte=1"`
	CooldownSeconds     int     `yaml:"cooldown_seconds" validate:"gte=0"`
	PopulationReference float64 `yaml:"population_reference" validate:"gt=0"`
	MaxPopulationFactor float64 `yaml:"max_population_factor" validate:"gte=1"`
	EraStep             float64 `yaml:"era_step" validate:"gte=0"`
	MaxEraFactor        float64 `yaml:"max_era_factor" validate:"gte=1"`
}

func Defaults() Tuning {
	return Tuning{
		Probabilities: map[string]float64{
			"stoneChanceFromSticks": 0.2,
			"boneChanceFromHunt":    0.3,
			"furChanceFromHunt":     0.25,
			"cookBurnChance":        0.15,
		},
		HireGrowthFactor: 1.5,
		Feeding: Feeding{
			FoodResource:   "cookedMeat",
			FoodPerWorker:  0.2,
			HungryFactor:   0.5,
			StarvingFactor: 0.1,
			IntervalMs:     5000,
		},
		EraGate: EraGate{
			Mode:               GateFractional,
			PopulationFraction: 0.5,
			DiversityFraction:  0.7,
			UpgradeFraction:    0.6,
		},
		Events: Events{
			BaseChance:          0.05,
			CooldownSeconds:     60,
			PopulationReference: 20,
			MaxPopulationFactor: 2,
			EraStep:             0.15,
			MaxEraFactor:        2,
		},
		AutoSaveSeconds: 30,
		SaveSlot:        "eraforge_save",
		StartingResources: map[string]float64{
			"sticks":     10,
			"stones":     5,
			"population": 1,
		},
	}
}

// Load reads tuning.yaml over Defaults and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	// Maps are replaced wholesale by yaml when present.
	t.Probabilities = nil
	t.StartingResources = nil
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	d := Defaults()
	if t.Probabilities == nil {
		t.Probabilities = d.Probabilities
	}
	if t.StartingResources == nil {
		t.StartingResources = d.StartingResources
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var validate = validator.New()

func (t Tuning) Validate() error {
	if err := validate.Struct(t); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s (value: %v)", e.Namespace(), e.Tag(), e.Value()))
			}
			return fmt.Errorf("invalid tuning: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// Probability returns the base probability registered under key (0 if absent).
func (t Tuning) Probability(key string) float64 {
	return t.Probabilities[key]
}

// Clone returns a deep copy so callers can adjust numbers without sharing maps.
func (t Tuning) Clone() Tuning {
	out := t
	out.Probabilities = make(map[string]float64, len(t.Probabilities))
	for k, v := range t.Probabilities {
		out.Probabilities[k] = v
	}
	out.StartingResources = make(map[string]float64, len(t.StartingResources))
	for k, v := range t.StartingResources {
		out.StartingResources[k] = v
	}
	return out
}

// ClampFraction bounds an era gate fraction to [0.1, 1.0].
func ClampFraction(f float64) float64 {
	if f < 0.1 || f != f {
		return 0.1
	}
	if f > 1 {
		return 1
	}
	return f
}
