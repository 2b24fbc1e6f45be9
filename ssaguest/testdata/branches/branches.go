package branches

func Classify(x int) int {
	if x < 0 {
		return -1
	}
	if x == 0 {
		return 0
	}
	return 1
}

func Check(x int) int {
	if x > 100 {
		panic("too large")
	}
	return x
}

func Sum(n int) int {
	s := 0
	for i := 0; i < n; i++ {
		s += i
	}
	return s
}

func Identity(x int) int {
	return x
}

var Limit = 10
