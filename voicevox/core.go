package voicevox

import (
	"runtime"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// The engine keeps its state in process globals, so at most one Core may be
// live at a time.
var (
	slotMu sync.Mutex
	slotOn bool
)

func claimSlot() bool {
	slotMu.Lock()
	defer slotMu.Unlock()
	if slotOn {
		return false
	}
	slotOn = true
	return true
}

func releaseSlot() {
	slotMu.Lock()
	slotOn = false
	slotMu.Unlock()
}

type coreState int

const (
	stateLive coreState = iota
	stateFinalized
)

// Core owns the process-wide VOICEVOX engine. Construct it with New and
// release it with Close; every other method fails with ErrFinalized once the
// core has been closed.
//
// Native calls are serialized on the Core. They are blocking and cannot be
// interrupted.
type Core struct {
	mu    sync.Mutex
	state coreState
}

// New loads the library if needed and initializes the engine.
func New(opts InitializeOptions) (*Core, error) {
	nopts, err := opts.toNative()
	if err != nil {
		return nil, err
	}
	if err := ensureLoaded(); err != nil {
		return nil, err
	}
	if !claimSlot() {
		return nil, ErrAlreadyInitialized
	}

	log.Debug("Initializing voicevox core",
		"acceleration", opts.AccelerationMode,
		"threads", opts.CPUNumThreads,
		"loadAllModels", opts.LoadAllModels,
		"dict", opts.OpenJTalkDictDir)

	if code := lib.initialize(nopts); code != ResultOK {
		releaseSlot()
		return nil, resultError(ErrEngineInit, code)
	}

	c := &Core{state: stateLive}
	// Safety net for a forgotten Close.
	runtime.SetFinalizer(c, func(c *Core) { _ = c.Close() })
	return c, nil
}

func resultError(kind error, code ResultCode) *ResultError {
	return &ResultError{Kind: kind, Code: code, Message: lib.errorMessage(code)}
}

func checkText(text string) error {
	if strings.IndexByte(text, 0) >= 0 {
		return ErrInvalidText
	}
	return nil
}

// do runs fn under the core lock, after checking the core is still live.
func (c *Core) do(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateLive {
		return ErrFinalized
	}
	return fn()
}

// Close finalizes the engine. It is safe to call more than once.
func (c *Core) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateFinalized {
		return nil
	}

	lib.finalize()
	c.state = stateFinalized
	releaseSlot()
	runtime.SetFinalizer(c, nil)

	log.Debug("Finalized voicevox core")
	return nil
}

// Live reports whether the core has not been closed yet.
func (c *Core) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateLive
}

// LoadModel loads the voice model serving speakerID.
func (c *Core) LoadModel(speakerID uint32) error {
	return c.do(func() error {
		if code := lib.loadModel(speakerID); code != ResultOK {
			return resultError(ErrModelLoad, code)
		}
		log.Debug("Loaded voice model", "speaker", speakerID)
		return nil
	})
}

// IsModelLoaded reports whether the model serving speakerID is loaded.
func (c *Core) IsModelLoaded(speakerID uint32) (bool, error) {
	var loaded bool
	err := c.do(func() error {
		loaded = lib.isModelLoaded(speakerID)
		return nil
	})
	return loaded, err
}

// IsGPUMode reports whether the engine runs inference on a GPU.
func (c *Core) IsGPUMode() (bool, error) {
	var gpu bool
	err := c.do(func() error {
		gpu = lib.isGPUMode()
		return nil
	})
	return gpu, err
}

// Version returns the library version.
func (c *Core) Version() (string, error) {
	var v string
	err := c.do(func() error {
		v = lib.version()
		return nil
	})
	return v, err
}

// Metas returns the speakers and styles bundled with the library.
func (c *Core) Metas() ([]SpeakerMeta, error) {
	var metas []SpeakerMeta
	err := c.do(func() error {
		var err error
		metas, err = decodeMetas(lib.metasJSON())
		return err
	})
	return metas, err
}

// SupportedDevices reports the inference backends available to the library.
func (c *Core) SupportedDevices() (SupportedDevices, error) {
	var d SupportedDevices
	err := c.do(func() error {
		var err error
		d, err = decodeSupportedDevices(lib.supportedDevicesJSON())
		return err
	})
	return d, err
}

// AudioQuery builds the prosody plan for text with the default query options.
func (c *Core) AudioQuery(text string, speakerID uint32) (*AudioQuery, error) {
	return c.AudioQueryWithOptions(text, speakerID, DefaultAudioQueryOptions())
}

// AudioQueryWithOptions builds the prosody plan for text.
func (c *Core) AudioQueryWithOptions(text string, speakerID uint32, opts AudioQueryOptions) (*AudioQuery, error) {
	var q *AudioQuery
	err := c.do(func() error {
		if err := checkText(text); err != nil {
			return err
		}

		raw, code := lib.audioQuery(text, speakerID, opts)
		if code != ResultOK {
			return resultError(ErrQuery, code)
		}

		var err error
		q, err = DecodeAudioQuery([]byte(raw))
		return err
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Synthesis renders query to WAV bytes with the default synthesis options.
func (c *Core) Synthesis(query *AudioQuery, speakerID uint32) ([]byte, error) {
	return c.SynthesisWithOptions(query, speakerID, DefaultSynthesisOptions())
}

// SynthesisWithOptions renders query to WAV bytes.
func (c *Core) SynthesisWithOptions(query *AudioQuery, speakerID uint32, opts SynthesisOptions) ([]byte, error) {
	var wav []byte
	err := c.do(func() error {
		data, err := query.Encode()
		if err != nil {
			return err
		}

		out, code := lib.synthesis(string(data), speakerID, opts)
		if code != ResultOK {
			return resultError(ErrSynthesis, code)
		}
		wav = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wav, nil
}

// TTS analyzes and renders text in one call with the default options.
func (c *Core) TTS(text string, speakerID uint32) ([]byte, error) {
	return c.TTSWithOptions(text, speakerID, DefaultTTSOptions())
}

// TTSWithOptions analyzes and renders text in one call.
func (c *Core) TTSWithOptions(text string, speakerID uint32, opts TTSOptions) ([]byte, error) {
	var wav []byte
	err := c.do(func() error {
		if err := checkText(text); err != nil {
			return err
		}

		out, code := lib.tts(text, speakerID, opts)
		if code != ResultOK {
			return resultError(ErrSynthesis, code)
		}
		wav = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wav, nil
}
