package configurator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/wyre-innovations/gerberdump/fabcost"
)

const (
	CfgFabWeightDimension  string = "fabcost.weights.dimension"
	CfgFabWeightApertures  string = "fabcost.weights.apertures"
	CfgFabWeightOperations string = "fabcost.weights.operations"
	CfgFabRefArea          string = "fabcost.reference.area"
	CfgFabRefApertures     string = "fabcost.reference.apertures"
	CfgFabRefOperations    string = "fabcost.reference.operations"

	CfgBatchWorkers string = "batch.workers"

	CfgOutputFormat string = "output.format"
	CfgOutputColor  string = "output.color"

	CfgDiscoveryPatterns string = "discovery.patterns"
)

const (
	ConfigName = "gerberdump"
	EnvPrefix  = "GERBERDUMP"
)

// DefaultPatterns are the file name patterns picked up in a directory.
var DefaultPatterns = []string{
	"*.gbr", "*.ger", "*.gtl", "*.gbl", "*.gto", "*.gbo", "*.gts", "*.gbs",
	"*.gtp", "*.gbp", "*.gko", "*.gm1", "*.gml", "*.g[0-9]", "*.pho", "*.art",
}

func SetDefaults(v *viper.Viper) {
	v.SetConfigName(ConfigName) // no need to include file extension
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// fabrication cost score
	v.SetDefault(CfgFabWeightDimension, fabcost.DefaultDimensionWeight)
	v.SetDefault(CfgFabWeightApertures, fabcost.DefaultApertureWeight)
	v.SetDefault(CfgFabWeightOperations, fabcost.DefaultOperationWeight)
	v.SetDefault(CfgFabRefArea, fabcost.DefaultReferenceArea)
	v.SetDefault(CfgFabRefApertures, fabcost.DefaultReferenceAps)
	v.SetDefault(CfgFabRefOperations, fabcost.DefaultReferenceOps)

	//
	v.SetDefault(CfgBatchWorkers, runtime.NumCPU())

	//
	v.SetDefault(CfgOutputFormat, "human")
	v.SetDefault(CfgOutputColor, "auto")
	v.SetDefault(CfgDiscoveryPatterns, DefaultPatterns)
}

// ProcessConfigFile reads the configuration. A missing file leaves the
// defaults in place; a file which cannot be parsed is an error.
func ProcessConfigFile(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	}
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("configuration file: %w", err)
}

// FabWeights returns the validated fabrication cost weights.
func FabWeights(v *viper.Viper) (fabcost.Weights, error) {
	w := fabcost.Weights{
		Dimension:  v.GetFloat64(CfgFabWeightDimension),
		Apertures:  v.GetFloat64(CfgFabWeightApertures),
		Operations: v.GetFloat64(CfgFabWeightOperations),
		Reference: fabcost.Reference{
			Area:       v.GetFloat64(CfgFabRefArea),
			Apertures:  v.GetFloat64(CfgFabRefApertures),
			Operations: v.GetFloat64(CfgFabRefOperations),
		},
	}
	if err := w.Validate(); err != nil {
		return fabcost.DefaultWeights(), fmt.Errorf("configured weights: %w", err)
	}
	return w, nil
}

// BatchWorkers returns the size of the file worker pool, at least 1.
func BatchWorkers(v *viper.Viper) int {
	n := v.GetInt(CfgBatchWorkers)
	if n < 1 {
		return 1
	}
	return n
}

// Patterns returns the discovery patterns, the defaults when none are configured.
func Patterns(v *viper.Viper) []string {
	p := v.GetStringSlice(CfgDiscoveryPatterns)
	if len(p) == 0 {
		return DefaultPatterns
	}
	return p
}

func DiagnosticAllCfgPrint(v *viper.Viper, w io.Writer) {
	c := v.AllSettings()
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintln(w, key, ":", c[key])
	}
	fmt.Fprintln(w)
}
