package fixed

var (
	Zero    = FromInt64(0, 0)
	One     = FromInt64(1, 0)
	Hundred = FromInt64(100, 0)
)
