package commands

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gossiplearn/gossiplearn/src/cache"
	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/config"
	"github.com/gossiplearn/gossiplearn/src/core"
	"github.com/gossiplearn/gossiplearn/src/data"
	"github.com/gossiplearn/gossiplearn/src/model"
	"github.com/gossiplearn/gossiplearn/src/node"
	"github.com/gossiplearn/gossiplearn/src/p2p"
	"github.com/gossiplearn/gossiplearn/src/simul"
)

var logger *logrus.Logger

//NewRunCmd returns the command that runs a simulation
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run simulation",
		PreRunE: loadConfig,
		RunE:    runSimulation,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runSimulation(cmd *cobra.Command, args []string) error {
	entry := logger.WithField("prefix", "gossiplearn")

	if _config.Dataset == "" {
		return common.NewSimErr("cli", common.InvalidConfig, "no dataset file")
	}

	X, y, err := data.LoadClassificationCSV(_config.Dataset)
	if err != nil {
		entry.WithField("dataset", _config.Dataset).Error("Cannot load dataset:", err)
		return err
	}

	rng := rand.New(rand.NewSource(_config.Seed))

	handler, err := data.NewClassificationDataHandler(X, y, _config.TestSize, rng)
	if err != nil {
		return err
	}

	dispatcher, err := data.NewDispatcher(handler, _config.Nodes, _config.EvalOnUser, rng)
	if err != nil {
		return err
	}

	net, err := p2p.NewStaticNetwork(_config.Nodes, nil)
	if err != nil {
		return err
	}

	c, err := buildCache()
	if err != nil {
		entry.Error("Cannot initialize snapshot cache:", err)
		return err
	}
	defer c.Close()

	netModel, err := buildNet(_config.Model, len(X[0]))
	if err != nil {
		return err
	}

	mode, err := parseMode(_config.Mode)
	if err != nil {
		return err
	}

	report, err := runVariant(dispatcher, net, netModel, mode, c, rng, entry)
	if err != nil {
		entry.Error("Simulation failed:", err)
		return err
	}

	printReport(report)

	return nil
}

// runVariant builds the node population and scheduler for the configured
// variant and runs it to completion.
func runVariant(
	dispatcher *data.Dispatcher,
	net p2p.Network,
	netModel model.Net,
	mode model.CreateModelMode,
	c cache.Cache,
	rng *rand.Rand,
	entry *logrus.Entry,
) (*simul.Report, error) {
	lr, wd := _config.LearningRate, _config.WeightDecay
	delay := _config.Delay()

	switch _config.Variant {

	case "plain":
		proto, err := model.NewLinearHandler(netModel, mode, lr, wd, c)
		if err != nil {
			return nil, err
		}
		pop, err := node.Generate(dispatcher, net, proto, _config.RoundLen, _config.Sync, c, rng, entry)
		if err != nil {
			return nil, err
		}
		nodes := make([]simul.Exchanger, dispatcher.Size())
		for i := range nodes {
			nodes[i] = pop[core.NodeID(i)]
		}
		return runPlain(nodes, dispatcher, delay, c, rng, entry)

	case "sampling":
		proto, err := model.NewSamplingLinearHandler(netModel, mode, lr, wd, _config.SampleSize, c)
		if err != nil {
			return nil, err
		}
		pop, err := node.GenerateSampling(dispatcher, net, proto, _config.RoundLen, _config.Sync, c, rng, entry)
		if err != nil {
			return nil, err
		}
		nodes := make([]simul.Exchanger, dispatcher.Size())
		for i := range nodes {
			nodes[i] = pop[core.NodeID(i)]
		}
		return runPlain(nodes, dispatcher, delay, c, rng, entry)

	case "partitioning":
		proto, err := model.NewPartitionedLinearHandler(netModel, mode, lr, wd, _config.NParts, c)
		if err != nil {
			return nil, err
		}
		pop, err := node.GeneratePartitioning(dispatcher, net, proto, _config.RoundLen, _config.Sync, c, rng, entry)
		if err != nil {
			return nil, err
		}
		nodes := make([]simul.Exchanger, dispatcher.Size())
		for i := range nodes {
			nodes[i] = pop[core.NodeID(i)]
		}
		return runPlain(nodes, dispatcher, delay, c, rng, entry)

	case "chord":
		proto, err := model.NewWeightedLinearHandler(netModel, mode, lr, wd, c)
		if err != nil {
			return nil, err
		}
		pop, err := node.GenerateChord(dispatcher, net, proto, _config.RoundLen, _config.Sync, c, rng, entry)
		if err != nil {
			return nil, err
		}
		nodes := make([]*node.ChordNode, dispatcher.Size())
		for i := range nodes {
			nodes[i] = pop[core.NodeID(i)]
		}
		sim, err := simul.NewChordSimulator(nodes, dispatcher, _config.RoundLen, delay,
			_config.DropProb, _config.SamplingEval, c, rng, entry)
		if err != nil {
			return nil, err
		}
		sim.InitNodes()
		return sim.Start(simul.NewUniformMixing(net), _config.Rounds)

	case "all2all":
		proto, err := model.NewWeightedLinearHandler(netModel, mode, lr, wd, c)
		if err != nil {
			return nil, err
		}
		pop, err := node.GenerateAll2All(dispatcher, net, proto, _config.RoundLen, _config.Sync, c, rng, entry)
		if err != nil {
			return nil, err
		}
		nodes := make([]*node.All2AllNode, dispatcher.Size())
		for i := range nodes {
			nodes[i] = pop[core.NodeID(i)]
		}
		sim, err := simul.NewAll2AllSimulator(nodes, dispatcher, _config.RoundLen, delay,
			_config.DropProb, _config.SamplingEval, c, rng, entry)
		if err != nil {
			return nil, err
		}
		sim.InitNodes()
		return sim.Start(simul.NewUniformMixing(net), _config.Rounds)

	default:
		return nil, common.NewSimErr("cli", common.InvalidConfig,
			fmt.Sprintf("unknown variant %q", _config.Variant))
	}
}

func runPlain(
	nodes []simul.Exchanger,
	dispatcher *data.Dispatcher,
	delay core.Delay,
	c cache.Cache,
	rng *rand.Rand,
	entry *logrus.Entry,
) (*simul.Report, error) {
	protocol, ok := core.ParseProtocol(_config.Protocol)
	if !ok {
		return nil, common.NewSimErr("cli", common.InvalidConfig,
			fmt.Sprintf("unknown protocol %q", _config.Protocol))
	}

	sim, err := simul.NewSimulator(nodes, dispatcher, _config.RoundLen, protocol, delay,
		_config.DropProb, _config.SamplingEval, c, rng, entry)
	if err != nil {
		return nil, err
	}

	sim.InitNodes()
	return sim.Start(_config.Rounds)
}

func buildCache() (cache.Cache, error) {
	if !_config.Store {
		return cache.NewInmemCache(), nil
	}
	return cache.NewBadgerCache(_config.DatabaseDir, func() interface{} {
		return &model.Snapshot{}
	})
}

func buildNet(name string, dim int) (model.Net, error) {
	switch name {
	case "adaline":
		return model.NewAdaLine(dim), nil
	case "logistic":
		return model.NewLogisticRegression(dim), nil
	default:
		return nil, common.NewSimErr("cli", common.InvalidConfig,
			fmt.Sprintf("unknown model %q", name))
	}
}

func parseMode(name string) (model.CreateModelMode, error) {
	switch name {
	case "update":
		return model.Update, nil
	case "merge-update":
		return model.MergeUpdate, nil
	case "update-merge":
		return model.UpdateMerge, nil
	default:
		return model.Update, common.NewSimErr("cli", common.InvalidConfig,
			fmt.Sprintf("unknown mode %q", name))
	}
}

func printReport(report *simul.Report) {
	fmt.Printf("sent=%d failed=%d dropped=%d\n",
		report.SentMessages, report.FailedMessages, report.DroppedMessages)

	for _, rs := range report.GlobalEvaluations() {
		fmt.Printf("round %d global: %v\n", rs.Round, rs.Scores)
	}
	for _, rs := range report.LocalEvaluations() {
		fmt.Printf("round %d local: %v\n", rs.Round, rs.Scores)
	}
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")

	// Data
	cmd.Flags().StringP("dataset", "d", _config.Dataset, "Classification CSV to train on")
	cmd.Flags().Float64("test-size", _config.TestSize, "Fraction of examples held out for evaluation")
	cmd.Flags().Bool("eval-on-user", _config.EvalOnUser, "Also deal the held-out split across nodes")

	// Population
	cmd.Flags().IntP("nodes", "n", _config.Nodes, "Number of nodes")
	cmd.Flags().String("variant", _config.Variant, "plain, chord, sampling, partitioning, all2all")
	cmd.Flags().String("model", _config.Model, "adaline or logistic")
	cmd.Flags().String("mode", _config.Mode, "update, merge-update or update-merge")
	cmd.Flags().Float64("lr", _config.LearningRate, "SGD learning rate")
	cmd.Flags().Float64("weight-decay", _config.WeightDecay, "SGD weight decay")
	cmd.Flags().Float64("sample-size", _config.SampleSize, "Relative sample size (sampling variant)")
	cmd.Flags().Int("n-parts", _config.NParts, "Number of model partitions (partitioning variant)")

	// Gossip
	cmd.Flags().String("protocol", _config.Protocol, "push, pull or push_pull")
	cmd.Flags().Int("round-len", _config.RoundLen, "Ticks per gossip round")
	cmd.Flags().Int("rounds", _config.Rounds, "Number of gossip rounds")
	cmd.Flags().Bool("sync", _config.Sync, "Wake every node once per round at a fixed offset")
	cmd.Flags().Int("delay-min", _config.DelayMin, "Minimum message delay in ticks")
	cmd.Flags().Int("delay-max", _config.DelayMax, "Maximum message delay in ticks")
	cmd.Flags().Float64("drop-prob", _config.DropProb, "Probability of losing a message in transit")
	cmd.Flags().Float64("sampling-eval", _config.SamplingEval, "Fraction of nodes evaluated on private data")
	cmd.Flags().Int64("seed", _config.Seed, "Seed of the run")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem snapshot cache")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logger = newLogger()
	logger.Level = config.LogLevel(_config.LogLevel)

	logFields := logrus.Fields{
		"DataDir":      _config.DataDir,
		"Dataset":      _config.Dataset,
		"Nodes":        _config.Nodes,
		"Variant":      _config.Variant,
		"Model":        _config.Model,
		"Mode":         _config.Mode,
		"Protocol":     _config.Protocol,
		"RoundLen":     _config.RoundLen,
		"Rounds":       _config.Rounds,
		"Sync":         _config.Sync,
		"DropProb":     _config.DropProb,
		"Seed":         _config.Seed,
		"Store":        _config.Store,
		"TestSize":     _config.TestSize,
		"EvalOnUser":   _config.EvalOnUser,
		"SamplingEval": _config.SamplingEval,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	logger.WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/gossiplearn.toml (.json, .yaml also work)
	viper.SetConfigName("gossiplearn") // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		logrus.Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		logrus.Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

func newLogger() *logrus.Logger {
	l := logrus.New()

	pathMap := lfshook.PathMap{}

	_, err := os.OpenFile("gossiplearn_info.log", os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		l.Info("Failed to open gossiplearn_info.log file, using default stderr")
	} else {
		pathMap[logrus.InfoLevel] = "gossiplearn_info.log"
	}

	_, err = os.OpenFile("gossiplearn_debug.log", os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		l.Info("Failed to open gossiplearn_debug.log file, using default stderr")
	} else {
		pathMap[logrus.DebugLevel] = "gossiplearn_debug.log"
	}

	l.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return l
}
