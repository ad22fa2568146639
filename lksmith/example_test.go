package lksmith_test

import (
	"fmt"

	"github.com/cmccabe/lksmith/lksmith"
)

// ExampleMutex demonstrates the drop-in mutex wrapper.
func ExampleMutex() {
	var mu lksmith.Mutex

	mu.Lock()
	fmt.Println("held:", mu.Held())
	if err := mu.Unlock(); err != nil {
		fmt.Println("unlock failed:", err)
	}
	fmt.Println("held:", mu.Held())

	// Output:
	// held: true
	// held: false
}

// ExampleMutex_Unlock shows how misuse surfaces as an error instead of a
// panic.
func ExampleMutex_Unlock() {
	var mu lksmith.Mutex
	if err := mu.Init(); err != nil {
		fmt.Println("init failed:", err)
		return
	}

	err := mu.Unlock() // never locked
	fmt.Println(err)

	// Output:
	// lksmith: NotHeld (code 3)
}

// ExampleSetThreadName shows thread naming for diagnostics.
func ExampleSetThreadName() {
	lksmith.SetThreadName("worker-1")
	fmt.Println(lksmith.GetThreadName())

	// Output:
	// worker-1
}
