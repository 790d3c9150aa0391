//go:build cgo && (linux || darwin)

package voicevox

// #cgo linux LDFLAGS: -ldl
//
// #include <dlfcn.h>
// #include <stdbool.h>
// #include <stdint.h>
// #include <stdlib.h>
//
// typedef struct {
//   int32_t acceleration_mode;
//   uint16_t cpu_num_threads;
//   bool load_all_models;
//   const char *open_jtalk_dict_dir;
// } vv_initialize_options;
//
// typedef struct { bool kana; } vv_audio_query_options;
// typedef struct { bool enable_interrogative_upspeak; } vv_synthesis_options;
// typedef struct { bool kana; bool enable_interrogative_upspeak; } vv_tts_options;
//
// static void *vv_handle;
//
// static vv_initialize_options (*p_make_default_initialize_options)(void);
// static vv_audio_query_options (*p_make_default_audio_query_options)(void);
// static vv_synthesis_options (*p_make_default_synthesis_options)(void);
// static vv_tts_options (*p_make_default_tts_options)(void);
// static int32_t (*p_initialize)(vv_initialize_options);
// static void (*p_finalize)(void);
// static const char *(*p_get_version)(void);
// static const char *(*p_get_metas_json)(void);
// static const char *(*p_get_supported_devices_json)(void);
// static int32_t (*p_load_model)(uint32_t);
// static bool (*p_is_gpu_mode)(void);
// static bool (*p_is_model_loaded)(uint32_t);
// static int32_t (*p_audio_query)(const char *, uint32_t, vv_audio_query_options, char **);
// static int32_t (*p_synthesis)(const char *, uint32_t, vv_synthesis_options, uintptr_t *, uint8_t **);
// static int32_t (*p_tts)(const char *, uint32_t, vv_tts_options, uintptr_t *, uint8_t **);
// static void (*p_audio_query_json_free)(char *);
// static void (*p_wav_free)(uint8_t *);
// static const char *(*p_error_result_to_message)(int32_t);
//
// #define VV_BIND(name, ptr)                               \
//   do {                                                   \
//     *(void **)(&ptr) = dlsym(vv_handle, name);           \
//     if (ptr == NULL) { *missing = name; goto fail; }     \
//   } while (0)
//
// static bool vv_load(const char *path, const char **missing) {
//   if (vv_handle != NULL) return true;
//   vv_handle = dlopen(path, RTLD_NOW | RTLD_LOCAL);
//   if (vv_handle == NULL) {
//     *missing = dlerror();
//     return false;
//   }
//   VV_BIND("voicevox_make_default_initialize_options", p_make_default_initialize_options);
//   VV_BIND("voicevox_make_default_audio_query_options", p_make_default_audio_query_options);
//   VV_BIND("voicevox_make_default_synthesis_options", p_make_default_synthesis_options);
//   VV_BIND("voicevox_make_default_tts_options", p_make_default_tts_options);
//   VV_BIND("voicevox_initialize", p_initialize);
//   VV_BIND("voicevox_finalize", p_finalize);
//   VV_BIND("voicevox_get_version", p_get_version);
//   VV_BIND("voicevox_get_metas_json", p_get_metas_json);
//   VV_BIND("voicevox_get_supported_devices_json", p_get_supported_devices_json);
//   VV_BIND("voicevox_load_model", p_load_model);
//   VV_BIND("voicevox_is_gpu_mode", p_is_gpu_mode);
//   VV_BIND("voicevox_is_model_loaded", p_is_model_loaded);
//   VV_BIND("voicevox_audio_query", p_audio_query);
//   VV_BIND("voicevox_synthesis", p_synthesis);
//   VV_BIND("voicevox_tts", p_tts);
//   VV_BIND("voicevox_audio_query_json_free", p_audio_query_json_free);
//   VV_BIND("voicevox_wav_free", p_wav_free);
//   VV_BIND("voicevox_error_result_to_message", p_error_result_to_message);
//   return true;
// fail:
//   dlclose(vv_handle);
//   vv_handle = NULL;
//   return false;
// }
//
// static vv_initialize_options vv_default_initialize_options(void) {
//   return p_make_default_initialize_options();
// }
// static vv_audio_query_options vv_default_audio_query_options(void) {
//   return p_make_default_audio_query_options();
// }
// static vv_synthesis_options vv_default_synthesis_options(void) {
//   return p_make_default_synthesis_options();
// }
// static vv_tts_options vv_default_tts_options(void) {
//   return p_make_default_tts_options();
// }
//
// static int32_t vv_initialize(int32_t mode, uint16_t threads, bool load_all, const char *dict) {
//   vv_initialize_options o = { mode, threads, load_all, dict };
//   return p_initialize(o);
// }
// static void vv_finalize(void) { p_finalize(); }
// static const char *vv_get_version(void) { return p_get_version(); }
// static const char *vv_get_metas_json(void) { return p_get_metas_json(); }
// static const char *vv_get_supported_devices_json(void) { return p_get_supported_devices_json(); }
// static int32_t vv_load_model(uint32_t id) { return p_load_model(id); }
// static bool vv_is_gpu_mode(void) { return p_is_gpu_mode(); }
// static bool vv_is_model_loaded(uint32_t id) { return p_is_model_loaded(id); }
//
// static int32_t vv_audio_query(const char *text, uint32_t id, bool kana, char **out) {
//   vv_audio_query_options o = { kana };
//   return p_audio_query(text, id, o, out);
// }
// static int32_t vv_synthesis(const char *json, uint32_t id, bool upspeak, uintptr_t *len, uint8_t **out) {
//   vv_synthesis_options o = { upspeak };
//   return p_synthesis(json, id, o, len, out);
// }
// static int32_t vv_tts(const char *text, uint32_t id, bool kana, bool upspeak, uintptr_t *len, uint8_t **out) {
//   vv_tts_options o = { kana, upspeak };
//   return p_tts(text, id, o, len, out);
// }
// static void vv_audio_query_json_free(char *json) { p_audio_query_json_free(json); }
// static void vv_wav_free(uint8_t *wav) { p_wav_free(wav); }
// static const char *vv_error_message(int32_t code) { return p_error_result_to_message(code); }
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// dlLibrary resolves libvoicevox_core at runtime so the binding builds and
// tests without the vendor headers or library present.
type dlLibrary struct {
	mu sync.Mutex
	ok bool
}

func newPlatformLibrary() nativeLibrary {
	return &dlLibrary{}
}

func (l *dlLibrary) load(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ok {
		return nil
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var reason *C.char
	if !C.vv_load(cPath, &reason) {
		return fmt.Errorf("%w: %s: %s", ErrLibraryNotLoaded, path, C.GoString(reason))
	}

	l.ok = true
	return nil
}

func (l *dlLibrary) loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ok
}

func (l *dlLibrary) defaultInitializeOptions() nativeInitializeOptions {
	o := C.vv_default_initialize_options()
	return nativeInitializeOptions{
		AccelerationMode: int32(o.acceleration_mode),
		CPUNumThreads:    uint16(o.cpu_num_threads),
		LoadAllModels:    bool(o.load_all_models),
	}
}

func (l *dlLibrary) defaultAudioQueryOptions() AudioQueryOptions {
	o := C.vv_default_audio_query_options()
	return AudioQueryOptions{Kana: bool(o.kana)}
}

func (l *dlLibrary) defaultSynthesisOptions() SynthesisOptions {
	o := C.vv_default_synthesis_options()
	return SynthesisOptions{EnableInterrogativeUpspeak: bool(o.enable_interrogative_upspeak)}
}

func (l *dlLibrary) defaultTTSOptions() TTSOptions {
	o := C.vv_default_tts_options()
	return TTSOptions{
		Kana:                       bool(o.kana),
		EnableInterrogativeUpspeak: bool(o.enable_interrogative_upspeak),
	}
}

func (l *dlLibrary) initialize(opts nativeInitializeOptions) ResultCode {
	cDict := C.CString(opts.OpenJTalkDictDir)
	defer C.free(unsafe.Pointer(cDict))

	return ResultCode(C.vv_initialize(
		C.int32_t(opts.AccelerationMode),
		C.uint16_t(opts.CPUNumThreads),
		C.bool(opts.LoadAllModels),
		cDict,
	))
}

func (l *dlLibrary) finalize() {
	C.vv_finalize()
}

// The strings below live in library memory for the life of the process;
// C.GoString copies them.

func (l *dlLibrary) version() string {
	return C.GoString(C.vv_get_version())
}

func (l *dlLibrary) metasJSON() string {
	return C.GoString(C.vv_get_metas_json())
}

func (l *dlLibrary) supportedDevicesJSON() string {
	return C.GoString(C.vv_get_supported_devices_json())
}

func (l *dlLibrary) errorMessage(code ResultCode) string {
	return C.GoString(C.vv_error_message(C.int32_t(code)))
}

func (l *dlLibrary) loadModel(speakerID uint32) ResultCode {
	return ResultCode(C.vv_load_model(C.uint32_t(speakerID)))
}

func (l *dlLibrary) isModelLoaded(speakerID uint32) bool {
	return bool(C.vv_is_model_loaded(C.uint32_t(speakerID)))
}

func (l *dlLibrary) isGPUMode() bool {
	return bool(C.vv_is_gpu_mode())
}

func (l *dlLibrary) audioQuery(text string, speakerID uint32, opts AudioQueryOptions) (string, ResultCode) {
	cText := C.CString(text)
	defer C.free(unsafe.Pointer(cText))

	var out *C.char
	code := ResultCode(C.vv_audio_query(cText, C.uint32_t(speakerID), C.bool(opts.Kana), &out))
	if code != ResultOK {
		return "", code
	}
	defer C.vv_audio_query_json_free(out)

	return C.GoString(out), ResultOK
}

func (l *dlLibrary) synthesis(queryJSON string, speakerID uint32, opts SynthesisOptions) ([]byte, ResultCode) {
	cJSON := C.CString(queryJSON)
	defer C.free(unsafe.Pointer(cJSON))

	var (
		length C.uintptr_t
		wav    *C.uint8_t
	)
	code := ResultCode(C.vv_synthesis(cJSON, C.uint32_t(speakerID),
		C.bool(opts.EnableInterrogativeUpspeak), &length, &wav))
	if code != ResultOK {
		return nil, code
	}
	return copyWAV(wav, length), ResultOK
}

func (l *dlLibrary) tts(text string, speakerID uint32, opts TTSOptions) ([]byte, ResultCode) {
	cText := C.CString(text)
	defer C.free(unsafe.Pointer(cText))

	var (
		length C.uintptr_t
		wav    *C.uint8_t
	)
	code := ResultCode(C.vv_tts(cText, C.uint32_t(speakerID),
		C.bool(opts.Kana), C.bool(opts.EnableInterrogativeUpspeak), &length, &wav))
	if code != ResultOK {
		return nil, code
	}
	return copyWAV(wav, length), ResultOK
}

// copyWAV copies a library-owned wav buffer into Go memory and frees it.
func copyWAV(wav *C.uint8_t, length C.uintptr_t) []byte {
	if wav == nil {
		return nil
	}
	defer C.vv_wav_free(wav)

	out := make([]byte, int(length))
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(wav)), int(length)))
	return out
}
