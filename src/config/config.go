package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/core"
)

// DefaultBadgerFile is the default name of the folder containing the Badger
// database backing the snapshot cache.
const DefaultBadgerFile = "badger_db"

// Default configuration values.
const (
	DefaultLogLevel     = "debug"
	DefaultNodes        = 100
	DefaultRoundLen     = 100
	DefaultRounds       = 100
	DefaultProtocol     = "push_pull"
	DefaultVariant      = "plain"
	DefaultModel        = "adaline"
	DefaultMode         = "merge-update"
	DefaultSync         = true
	DefaultDelayMin     = 1
	DefaultDelayMax     = 1
	DefaultDropProb     = 0.0
	DefaultSeed         = 42
	DefaultStore        = false
	DefaultTestSize     = 0.1
	DefaultEvalOnUser   = false
	DefaultSamplingEval = 0.0
	DefaultSampleSize   = 0.25
	DefaultNParts       = 4
	DefaultLearningRate = 0.01
	DefaultWeightDecay  = 0.0
)

// Config contains all the configuration properties of a simulation run.
type Config struct {
	// DataDir is the top-level directory containing configuration and data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Dataset is the path of the classification CSV to train on.
	Dataset string `mapstructure:"dataset"`

	// Nodes is the population size.
	Nodes int `mapstructure:"nodes"`

	// RoundLen is the number of ticks per gossip round.
	RoundLen int `mapstructure:"round-len"`

	// Rounds is how many gossip rounds to simulate.
	Rounds int `mapstructure:"rounds"`

	// Protocol selects the anti-entropy protocol: push, pull or push_pull.
	Protocol string `mapstructure:"protocol"`

	// Variant selects the node behavior: plain, chord, sampling,
	// partitioning or all2all.
	Variant string `mapstructure:"variant"`

	// Model selects the local model: adaline or logistic.
	Model string `mapstructure:"model"`

	// Mode selects how a received snapshot is combined with local training:
	// update, merge-update or update-merge.
	Mode string `mapstructure:"mode"`

	// Sync makes every node wake once per round at a fixed offset. When
	// false, nodes wake on their own independent period.
	Sync bool `mapstructure:"sync"`

	// DelayMin and DelayMax bound message transit time in ticks. Equal
	// values give a constant delay.
	DelayMin int `mapstructure:"delay-min"`
	DelayMax int `mapstructure:"delay-max"`

	// DropProb is the probability that a message is lost in transit.
	DropProb float64 `mapstructure:"drop-prob"`

	// Seed feeds every random draw of the run, making it reproducible.
	Seed int64 `mapstructure:"seed"`

	// Store activates the disk-backed snapshot cache.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// TestSize is the fraction of the dataset held out for evaluation.
	TestSize float64 `mapstructure:"test-size"`

	// EvalOnUser also deals the held-out split across nodes so each can
	// evaluate on private data.
	EvalOnUser bool `mapstructure:"eval-on-user"`

	// SamplingEval is the fraction of nodes evaluated on their private
	// split at the end of each round. Zero disables local evaluation.
	SamplingEval float64 `mapstructure:"sampling-eval"`

	// SampleSize is the relative size of the coordinate sample exchanged by
	// the sampling variant.
	SampleSize float64 `mapstructure:"sample-size"`

	// NParts is the number of model partitions used by the partitioning
	// variant.
	NParts int `mapstructure:"n-parts"`

	// LearningRate and WeightDecay parameterize local SGD.
	LearningRate float64 `mapstructure:"lr"`
	WeightDecay  float64 `mapstructure:"weight-decay"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:      DefaultDataDir(),
		LogLevel:     DefaultLogLevel,
		Nodes:        DefaultNodes,
		RoundLen:     DefaultRoundLen,
		Rounds:       DefaultRounds,
		Protocol:     DefaultProtocol,
		Variant:      DefaultVariant,
		Model:        DefaultModel,
		Mode:         DefaultMode,
		Sync:         DefaultSync,
		DelayMin:     DefaultDelayMin,
		DelayMax:     DefaultDelayMax,
		DropProb:     DefaultDropProb,
		Seed:         DefaultSeed,
		Store:        DefaultStore,
		DatabaseDir:  DefaultDatabaseDir(),
		TestSize:     DefaultTestSize,
		EvalOnUser:   DefaultEvalOnUser,
		SamplingEval: DefaultSamplingEval,
		SampleSize:   DefaultSampleSize,
		NParts:       DefaultNParts,
		LearningRate: DefaultLearningRate,
		WeightDecay:  DefaultWeightDecay,
	}
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level data directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, the user has explicitely set it to
// something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Delay returns the message delay policy described by DelayMin and DelayMax.
func (c *Config) Delay() core.Delay {
	if c.DelayMin >= c.DelayMax {
		return core.ConstantDelay(c.DelayMin)
	}
	return core.UniformDelay{Min: c.DelayMin, Max: c.DelayMax}
}

// Logger returns a formatted logrus Entry, with prefix set to "gossiplearn".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "gossiplearn")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir returns the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Gossiplearn")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Gossiplearn")
		} else {
			return filepath.Join(home, ".gossiplearn")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
