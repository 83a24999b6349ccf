package tracker

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/andresmejia3/roitrack/internal/types"
)

// Tracker follows a single target across frames. Init is called exactly
// once; Update is then fed frames in strictly increasing order.
type Tracker interface {
	Init(frame types.Frame, roi types.ROI) error
	// Update returns the new estimate and whether the target was
	// confidently relocated. The ROI is meaningless when ok is false.
	Update(frame types.Frame) (roi types.ROI, ok bool)
	Close() error
}

// Kind names a tracking algorithm.
type Kind string

const (
	Boosting   Kind = "Boosting"
	MIL        Kind = "MIL"
	KCF        Kind = "KCF"
	TLD        Kind = "TLD"
	MedianFlow Kind = "MedianFlow"
	GOTURN     Kind = "GOTURN"
	CSRT       Kind = "CSRT"
)

// DefaultKind is used when no kind is given, when a name is unknown, and
// when the requested engine is not available in this build.
const DefaultKind = KCF

// Kinds lists every known algorithm in display order.
var Kinds = []Kind{Boosting, MIL, KCF, TLD, MedianFlow, GOTURN, CSRT}

var (
	// ErrUnknownKind is returned by ParseKind for a name outside Kinds.
	ErrUnknownKind = errors.New("unknown tracker kind")
	// ErrNoTracker means neither the requested nor the default engine can be built.
	ErrNoTracker = errors.New("no tracker available")
	// ErrInitFailed is returned when an engine rejects its first frame and ROI.
	ErrInitFailed = errors.New("tracker initialization failed")
)

// ParseKind matches name against Kinds, ignoring case.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(string(k), strings.TrimSpace(name)) {
			return k, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownKind, "%q (valid: %s)", name, KindNames())
}

// Resolve maps a user supplied name to a Kind. An empty or unknown name
// resolves to DefaultKind with fellBack set so the caller can warn.
func Resolve(name string) (kind Kind, fellBack bool) {
	if strings.TrimSpace(name) == "" {
		return DefaultKind, false
	}
	k, err := ParseKind(name)
	if err != nil {
		return DefaultKind, true
	}
	return k, false
}

// KindNames returns the comma separated list of kind names.
func KindNames() string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// Constructor builds a fresh, uninitialized engine.
type Constructor func() (Tracker, error)

// Registry maps kinds to constructors. Every kind resolves to something:
// either its own engine or DefaultKind's.
type Registry struct {
	constructors map[Kind]Constructor
	logger       *zap.SugaredLogger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{constructors: make(map[Kind]Constructor), logger: logger}
}

// Register binds a constructor to kind, replacing any previous one.
func (r *Registry) Register(kind Kind, ctor Constructor) {
	r.constructors[kind] = ctor
}

// Available returns the kinds with a native engine, sorted by name.
func (r *Registry) Available() []Kind {
	out := make([]Kind, 0, len(r.constructors))
	for k := range r.constructors {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Lookup returns the constructor that New would use for kind and the
// kind it actually builds.
func (r *Registry) Lookup(kind Kind) (Constructor, Kind, error) {
	if ctor, ok := r.constructors[kind]; ok {
		return ctor, kind, nil
	}
	if ctor, ok := r.constructors[DefaultKind]; ok {
		return ctor, DefaultKind, nil
	}
	return nil, "", errors.Wrapf(ErrNoTracker, "%s requested, default %s not registered", kind, DefaultKind)
}

// New builds an engine for kind, substituting DefaultKind when kind has no
// engine in this build. The returned tracker enforces Init-before-Update.
func (r *Registry) New(kind Kind) (Tracker, Kind, error) {
	ctor, built, err := r.Lookup(kind)
	if err != nil {
		return nil, "", err
	}
	if built != kind {
		r.logger.Warnw("tracker not available in this build, using default", "requested", kind, "using", built)
	}
	t, err := ctor()
	if err != nil {
		return nil, "", errors.Wrapf(err, "creating %s tracker", built)
	}
	return Guard(t), built, nil
}
