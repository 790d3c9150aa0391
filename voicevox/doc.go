// Package voicevox binds the VOICEVOX core engine's C API.
//
// The shared library is opened at runtime (see LoadLibrary), so programs build
// without the vendor headers. All engine state is process-global: only one
// Core can be live at a time, and every buffer the library hands back is
// copied into Go memory and released before a call returns.
//
//	core, err := voicevox.New(voicevox.InitializeOptions{
//		OpenJTalkDictDir: "./open_jtalk_dic_utf_8-1.11",
//	})
//	if err != nil {
//		return err
//	}
//	defer core.Close()
//
//	if err := core.LoadModel(1); err != nil {
//		return err
//	}
//	wav, err := core.TTS("こんにちは", 1)
package voicevox
