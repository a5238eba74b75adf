// Package kfmt provides a minimal, allocation-conscious Printf implementation
// that kernel subsystems can use for logging before and after the output
// console becomes available.
package kfmt

import "io"

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")

	trueValue  = []byte("true")
	falseValue = []byte("false")

	// earlyPrintBuffer buffers Printf output generated before an output
	// sink has been registered.
	earlyPrintBuffer ringBuffer

	// outputSink is the io.Writer where Printf sends its output. While
	// nil, output is redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the target for calls to Printf to w and drains any data
// accumulated in the early print buffer into it. Passing nil reverts Printf
// to buffered mode.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// Printf writes a formatted string to the registered output sink or, if none
// has been registered yet, to the early print buffer.
//
// The following subset of formatting verbs is supported:
//
//	%s  the uninterpreted bytes of a string or byte slice
//	%o  integer, base 8
//	%d  integer, base 10
//	%x  integer, base 16 with lower-case letters
//	%t  "true" or "false"
//
// An optional decimal width may precede the verb. Strings and base-10
// integers shorter than the width are left-padded with spaces; base-16
// integers are left-padded with zeroes.
func Printf(format string, args ...interface{}) {
	if outputSink == nil {
		Fprintf(&earlyPrintBuffer, format, args...)
		return
	}
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but writes the formatted output to the
// supplied io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		nextArg    int
		blockStart int
	)

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}

		w.Write([]byte(format[blockStart:i]))

		// Scan past an optional pad width to the verb.
		padLen := 0
		i++
		for ; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			padLen = padLen*10 + int(format[i]-'0')
		}

		if i >= len(format) {
			w.Write(errNoVerb)
			return
		}

		switch verb := format[i]; verb {
		case '%':
			w.Write([]byte{'%'})
		case 'o', 'd', 'x':
			if nextArg >= len(args) {
				w.Write(errMissingArg)
				break
			}
			base := 10
			switch verb {
			case 'o':
				base = 8
			case 'x':
				base = 16
			}
			fmtInt(w, args[nextArg], base, padLen)
			nextArg++
		case 's':
			if nextArg >= len(args) {
				w.Write(errMissingArg)
				break
			}
			fmtString(w, args[nextArg], padLen)
			nextArg++
		case 't':
			if nextArg >= len(args) {
				w.Write(errMissingArg)
				break
			}
			fmtBool(w, args[nextArg])
			nextArg++
		default:
			w.Write(errNoVerb)
		}

		blockStart = i + 1
	}

	if blockStart < len(format) {
		w.Write([]byte(format[blockStart:]))
	}
}

func fmtBool(w io.Writer, arg interface{}) {
	v, ok := arg.(bool)
	if !ok {
		w.Write(errWrongArgType)
		return
	}
	if v {
		w.Write(trueValue)
		return
	}
	w.Write(falseValue)
}

func fmtString(w io.Writer, arg interface{}, padLen int) {
	var s []byte
	switch v := arg.(type) {
	case string:
		s = []byte(v)
	case []byte:
		s = v
	case interface{ String() string }:
		s = []byte(v.String())
	default:
		w.Write(errWrongArgType)
		return
	}

	for pad := padLen - len(s); pad > 0; pad-- {
		w.Write([]byte{' '})
	}
	w.Write(s)
}

func fmtInt(w io.Writer, arg interface{}, base, padLen int) {
	var (
		v    uint64
		neg  bool
		sv   int64
		isTy = true
	)

	switch t := arg.(type) {
	case uint8:
		v = uint64(t)
	case uint16:
		v = uint64(t)
	case uint32:
		v = uint64(t)
	case uint64:
		v = t
	case uint:
		v = uint64(t)
	case uintptr:
		v = uint64(t)
	case int8:
		sv = int64(t)
	case int16:
		sv = int64(t)
	case int32:
		sv = int64(t)
	case int64:
		sv = t
	case int:
		sv = int64(t)
	default:
		isTy = false
	}

	if !isTy {
		w.Write(errWrongArgType)
		return
	}

	if sv < 0 {
		// Negate via the complement so the minimum value does not
		// overflow int64.
		neg = true
		v = uint64(^sv) + 1
	} else if v == 0 {
		v = uint64(sv)
	}

	var buf [32]byte
	i := len(buf)
	for {
		i--
		d := byte(v % uint64(base))
		if d < 10 {
			buf[i] = '0' + d
		} else {
			buf[i] = 'a' + d - 10
		}
		v /= uint64(base)
		if v == 0 {
			break
		}
	}
	if neg {
		i--
		buf[i] = '-'
	}

	padByte := byte(' ')
	if base == 16 {
		padByte = '0'
	}
	for pad := padLen - (len(buf) - i); pad > 0; pad-- {
		w.Write([]byte{padByte})
	}
	w.Write(buf[i:])
}
