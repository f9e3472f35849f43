package worker

import (
	"github.com/storemill/storemill/src/internal/cmdutil"
	"github.com/storemill/storemill/src/internal/errors"
	"github.com/storemill/storemill/src/internal/storage/chunk"
)

// Env holds the worker configuration, populated from the environment.
type Env struct {
	// RetainKeys selects the key mode of the store being built.
	RetainKeys bool `env:"STOREMILL_RETAIN_KEYS,default=false"`
	// Checksum names the digest streamed over the output files; one of
	// "none", "crc32", "adler32", "md5", "blake2b".
	Checksum string `env:"STOREMILL_CHECKSUM,default=md5"`
	// ChunkCount is the number of chunks each partition is divided into.
	ChunkCount uint32 `env:"STOREMILL_CHUNK_COUNT,default=1"`
	// StoreName names the store; it prefixes every scratch file.
	StoreName string `env:"STOREMILL_STORE_NAME,default=store"`
	// OutputRoot is the local directory the store is built under.
	OutputRoot string `env:"STOREMILL_OUTPUT_ROOT,required"`
	// ScratchDir is the directory under OutputRoot holding in-progress files.
	ScratchDir string `env:"STOREMILL_SCRATCH_DIR,default=_scratch"`
	// Parallelism bounds the number of chunk builds running at once.
	Parallelism int64 `env:"STOREMILL_PARALLELISM,default=8"`
	// Attempts is the number of speculative attempts per chunk.  Every
	// attempt publishes to the same final names; the last rename wins.
	Attempts int `env:"STOREMILL_ATTEMPTS,default=1"`
}

// EnvFromOS populates an Env from the process environment.
func EnvFromOS() (*Env, error) {
	env := &Env{}
	if err := cmdutil.Populate(env); err != nil {
		return nil, errors.Wrap(err, "populate worker env")
	}
	return env, nil
}

// BuilderConfig derives the chunk builder configuration from the env.
func (e *Env) BuilderConfig() (chunk.BuilderConfig, error) {
	alg, err := chunk.ParseChecksumAlgorithm(e.Checksum)
	if err != nil {
		return chunk.BuilderConfig{}, err
	}
	return chunk.BuilderConfig{
		RetainKeys: e.RetainKeys,
		Checksum:   alg,
		ChunkCount: e.ChunkCount,
		StoreName:  e.StoreName,
		ScratchDir: e.ScratchDir,
	}, nil
}
