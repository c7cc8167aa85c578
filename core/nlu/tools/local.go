package tools

// LocalConfig configures the in-process Toolkit.
type LocalConfig struct {
	VectorDimension int              `yaml:"vector_dimension"`
	VectorCacheSize int              `yaml:"vector_cache_size"`
	Languages       []string         `yaml:"languages"`
	Classifier      ClassifierConfig `yaml:"classifier"`
	CRF             CRFConfig        `yaml:"crf"`
	KMeans          KMeansConfig     `yaml:"-"`
}

// DefaultLocalConfig returns the defaults for NewLocal.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		VectorDimension: DefaultVectorDimension,
		VectorCacheSize: DefaultVectorCacheSize,
		Classifier:      DefaultClassifierConfig(),
		CRF:             DefaultCRFConfig(),
		KMeans:          DefaultKMeansConfig(),
	}
}

// Local is the in-process Toolkit. All components are safe for concurrent
// use.
type Local struct {
	cfg LocalConfig

	tokenizer *UtteranceTokenizer
	vectors   *HashVectorizer
	languages *StopwordIdentifier
	junk      NgramJunkGenerator
	system    RegexSystemExtractor
}

var _ Toolkit = (*Local)(nil)

// NewLocal creates a Local toolkit.
func NewLocal(cfg LocalConfig) *Local {
	return &Local{
		cfg:       cfg,
		tokenizer: NewUtteranceTokenizer(),
		vectors:   NewHashVectorizer(cfg.VectorDimension, cfg.VectorCacheSize),
		languages: NewStopwordIdentifier(cfg.Languages),
	}
}

// Languages returns the languages the identifier can report.
func (l *Local) Languages() []string {
	return l.languages.Languages()
}
