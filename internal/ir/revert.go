package ir

// Revert codes of compiler-generated checks
const (
	ArithmeticRevertCode uint64 = 0xffff_ffff_ffff_0001
	AssertRevertCode     uint64 = 0xffff_ffff_ffff_0004
	MatchRevertCode      uint64 = 0xffff_ffff_ffff_0005

	// DispatchRevertCode is raised by a contract called with an unknown
	// selector
	DispatchRevertCode uint64 = 123
)
