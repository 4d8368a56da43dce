//go:build llama

package llamacpp

// cgo link directives for the in-process binding.
// - rpath $ORIGIN lets the loader find libllama.so and libggml*.so next to
//   the built binary (./bin).
// - -L${SRCDIR}/../../bin finds libllama.so at link time.
// - Headers are expected under ./third_party/llama.cpp/include.
/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/llama.cpp/include -I${SRCDIR}/../../third_party/llama.cpp/ggml/include -O2
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama -lm -lstdc++
*/
import "C"
