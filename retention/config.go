package retention

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/casvault/gcsweep/walk"
)

// FullHistoryDepth is the keep_history_depth sentinel meaning "preserve
// all reachable history" (spec §3's FULL).
const FullHistoryDepth = int64(-1)

// UnsetTimestamp is the keep_history_timestamp sentinel meaning
// "timestamp-based retention disabled" (spec §3's UNSET).
const UnsetTimestamp = walk.UnsetTimestamp

// Config is the retention configuration a caller supplies to a GC run
// (spec §6's recognized configuration options, minus the deletion-log
// sink, which sweep.Config carries, and the uploader, object_fetcher,
// and reflog collaborator references, which are passed as explicit
// arguments rather than buried in a config struct — per
// spec §9's note that collaborators should be explicit references, not
// ambient state).
type Config struct {
	// KeepHistoryDepth preserves this many revisions back from the head
	// along the trunk previous-chain, or FullHistoryDepth to preserve
	// everything.
	KeepHistoryDepth int64 `yaml:"keep_history_depth" help:"number of historic revisions to preserve along the trunk, or -1 to preserve full history" default:"-1"`
	// KeepHistoryTimestamp preserves any trunk revision whose timestamp
	// is strictly greater than this value, or UnsetTimestamp to disable.
	KeepHistoryTimestamp int64 `yaml:"keep_history_timestamp" help:"unix seconds at or before which trunk revisions may be pruned, or -1 to disable timestamp-based retention" default:"-1"`
	// DryRun, when true, logs condemned hashes without deleting them or
	// removing them from the reflog (spec §4.6).
	DryRun bool `yaml:"dry_run" help:"log condemned hashes without deleting anything" default:"false"`
	// UseReflogTimestamps selects the reflog's registration timestamp
	// instead of a catalog's embedded timestamp for §4.5.3's comparison.
	UseReflogTimestamps bool `yaml:"use_reflog_timestamps" help:"use reflog registration time instead of catalog-embedded time for timestamp retention" default:"false"`
	// NumThreads selects the traversal strategy: 1 selects walk.Serial,
	// anything greater selects walk.Parallel with that many workers.
	NumThreads int `yaml:"num_threads" help:"number of catalog-traversal worker threads; 1 selects the serial strategy" default:"4"`
}

// LoadConfig decodes a Config from a YAML document, for hosts that store
// retention policy on disk rather than constructing Config literally.
// Fields absent from the document keep Config's Go zero values, not the
// help-tag defaults above — defaults are a host's responsibility to
// apply before calling LoadConfig if desired.
func LoadConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// depthPolicy translates cfg into the walk package's DepthPolicy, wiring
// in the timestamp source implied by UseReflogTimestamps.
func (cfg Config) depthPolicy() walk.DepthPolicy {
	source := walk.CatalogEmbeddedTimestamp
	if cfg.UseReflogTimestamps {
		source = walk.ReflogRegisteredTimestamp
	}
	return walk.DepthPolicy{
		FullHistory:          cfg.KeepHistoryDepth == FullHistoryDepth,
		KeepHistoryDepth:     cfg.KeepHistoryDepth,
		KeepHistoryTimestamp: cfg.KeepHistoryTimestamp,
		TimestampSource:      source,
	}
}
