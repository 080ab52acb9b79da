package games

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	ErrUnknownGame    = errors.New("unknown game")
	ErrInvalidCatalog = errors.New("invalid game catalog")
)

type Kind string

const (
	KindChoice Kind = "choice"
	KindRisk   Kind = "risk"
	KindRecall Kind = "recall"
	KindGoNoGo Kind = "go-no-go"
)

// Game is one catalog entry.
type Game struct {
	ID            string          `yaml:"id" json:"id"`
	Name          string          `yaml:"name" json:"name"`
	Kind          Kind            `yaml:"kind" json:"kind"`
	RoundDuration time.Duration   `yaml:"round_duration" json:"-"`
	SettleDelay   time.Duration   `yaml:"settle_delay" json:"-"`
	AutoAdvance   bool            `yaml:"auto_advance" json:"auto_advance"`
	StopOnTimeout bool            `yaml:"stop_on_timeout" json:"stop_on_timeout"`
	StopOnMiss    bool            `yaml:"stop_on_miss" json:"stop_on_miss"`
	RetryOnMiss   bool            `yaml:"retry_on_miss" json:"retry_on_miss"`
	MaxAttempts   int             `yaml:"max_attempts" json:"-"`
	Shuffle       bool            `yaml:"shuffle" json:"-"`
	MaxRounds     int             `yaml:"max_rounds" json:"-"`
	PointsCorrect int             `yaml:"points_correct" json:"-"`
	Options       []string        `yaml:"options" json:"-"`
	Rounds        []RoundDef      `yaml:"rounds" json:"-"`
	Recall        *RecallSettings `yaml:"recall" json:"-"`
	GoNoGo        *GoNoGoSettings `yaml:"go_no_go" json:"-"`
}

// RoundDef is a hand-authored round. Which fields matter depends on the
// game's kind.
type RoundDef struct {
	Key       string        `yaml:"key"`
	Prompt    string        `yaml:"prompt"`
	Image     string        `yaml:"image"`
	Options   []string      `yaml:"options"`
	Answer    string        `yaml:"answer"`
	Ambiguity string        `yaml:"ambiguity"`
	Hint      string        `yaml:"hint"`
	Duration  time.Duration `yaml:"duration"`

	SafeReward   int     `yaml:"safe_reward"`
	RiskyReward  int     `yaml:"risky_reward"`
	RiskyPenalty int     `yaml:"risky_penalty"`
	SuccessProb  float64 `yaml:"success_prob"`
}

type RecallSettings struct {
	GridSize      int           `yaml:"grid_size"`
	Levels        int           `yaml:"levels"`
	StartLength   int           `yaml:"start_length"`
	LengthStep    int           `yaml:"length_step"`
	Flash         time.Duration `yaml:"flash"`
	Gap           time.Duration `yaml:"gap"`
	RecallTime    time.Duration `yaml:"recall_time"`
	PointsPerCell int           `yaml:"points_per_cell"`
}

type GoNoGoSettings struct {
	TrialsPerLevel int           `yaml:"trials_per_level"`
	Levels         []GoNoGoLevel `yaml:"levels"`
}

type GoNoGoLevel struct {
	GreenInterval time.Duration `yaml:"green_interval"`
	RedInterval   time.Duration `yaml:"red_interval"`
}

// Catalog is an immutable set of games keyed by ID.
type Catalog struct {
	games map[string]Game
}

type catalogFile struct {
	Games []Game `yaml:"games"`
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadCatalog reads a catalog file, falling back to the embedded catalog
// when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	c := &Catalog{games: make(map[string]Game, len(f.Games))}
	for _, g := range f.Games {
		if err := g.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.games[g.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate game id %q", ErrInvalidCatalog, g.ID)
		}
		c.games[g.ID] = g
	}
	if len(c.games) == 0 {
		return nil, fmt.Errorf("%w: no games", ErrInvalidCatalog)
	}
	return c, nil
}

func (c *Catalog) Get(id string) (Game, error) {
	g, ok := c.games[id]
	if !ok {
		return Game{}, fmt.Errorf("%w: %q", ErrUnknownGame, id)
	}
	return g, nil
}

// List returns the games sorted by ID.
func (c *Catalog) List() []Game {
	out := make([]Game, 0, len(c.games))
	for _, g := range c.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g Game) validate() error {
	if g.ID == "" {
		return fmt.Errorf("%w: game without id", ErrInvalidCatalog)
	}
	if g.StopOnMiss && g.RetryOnMiss {
		return fmt.Errorf("%w: game %q sets both stop_on_miss and retry_on_miss", ErrInvalidCatalog, g.ID)
	}
	switch g.Kind {
	case KindChoice, KindRisk:
		if len(g.Rounds) == 0 {
			return fmt.Errorf("%w: game %q has no rounds", ErrInvalidCatalog, g.ID)
		}
	case KindRecall:
		r := g.Recall
		if r == nil || r.GridSize <= 0 || r.Levels <= 0 || r.StartLength <= 0 {
			return fmt.Errorf("%w: game %q needs recall settings", ErrInvalidCatalog, g.ID)
		}
		if longest := r.StartLength + (r.Levels-1)*r.LengthStep; longest > r.GridSize*r.GridSize {
			return fmt.Errorf("%w: game %q pattern of %d cells does not fit the grid", ErrInvalidCatalog, g.ID, longest)
		}
	case KindGoNoGo:
		if g.GoNoGo == nil || g.GoNoGo.TrialsPerLevel <= 0 || len(g.GoNoGo.Levels) == 0 {
			return fmt.Errorf("%w: game %q needs go/no-go settings", ErrInvalidCatalog, g.ID)
		}
	default:
		return fmt.Errorf("%w: game %q has unknown kind %q", ErrInvalidCatalog, g.ID, g.Kind)
	}
	return nil
}
