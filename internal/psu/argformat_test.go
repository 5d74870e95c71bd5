package psu_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/shaunagostinho/psudash/internal/psu"
)

var _ = Describe("ArgFormat", func() {
	oneDec := ArgFormat{Decimals: 1, Digits: 3}
	twoDec := ArgFormat{Decimals: 2, Digits: 3}
	status := ArgFormat{Decimals: 2, Digits: 4}

	DescribeTable("Encode",
		func(f ArgFormat, v float64, s string) {
			Expect(f.Encode(v)).To(Equal(s))
		},
		Entry("plain", oneDec, 12.3, "123"),
		Entry("pads", oneDec, 0.1, "001"),
		Entry("zero", oneDec, 0.0, "000"),
		Entry("max", oneDec, 99.9, "999"),
		Entry("rounds up", oneDec, 12.99, "130"),
		Entry("rounds down", oneDec, 12.34, "123"),
		Entry("rounds half away", oneDec, 0.25, "003"),
		Entry("two decimals", twoDec, 5.0, "500"),
		Entry("two decimals pads", twoDec, 0.05, "005"),
		Entry("status width", status, 12.34, "1234"),
		Entry("flag", ArgFormat{Decimals: 0, Digits: 1}, 1.0, "1"),
	)

	DescribeTable("Encode rejects",
		func(f ArgFormat, v float64) {
			s, err := f.Encode(v)
			Expect(s).To(BeEmpty())
			var ue *ValueUnrepresentableError
			Expect(err).To(BeAssignableToTypeOf(ue))
			Expect(err.Error()).To(HavePrefix("unrepresentable value in command: "))
		},
		Entry("too large", oneDec, 100.0),
		Entry("just over max", twoDec, 9.991),
		Entry("negative", oneDec, -0.1),
		Entry("NaN", oneDec, math.NaN()),
		Entry("+Inf", oneDec, math.Inf(1)),
		Entry("-Inf", oneDec, math.Inf(-1)),
		Entry("wider than uint64", ArgFormat{Decimals: 0, Digits: 20}, 5e19),
		Entry("rounds past 19 digits", ArgFormat{Decimals: 0, Digits: 19}, 1e19),
		Entry("no digits", ArgFormat{Decimals: 0, Digits: 0}, 0.0),
		Entry("negative decimals", ArgFormat{Decimals: -1, Digits: 3}, 1.0),
		Entry("more decimals than digits", ArgFormat{Decimals: 4, Digits: 3}, 0.001),
	)

	It("encodes the widest field", func() {
		f := ArgFormat{Decimals: 0, Digits: 19}
		Expect(f.Encode(9e18)).To(Equal("9000000000000000000"))
		Expect(f.Encode(42)).To(Equal("0000000000000000042"))
	})

	It("leaves the buffer alone on error", func() {
		b := []byte("VOLT")
		out, err := oneDec.Append(b, 1000)
		Expect(err).To(HaveOccurred())
		Expect(out).To(Equal([]byte("VOLT")))
	})

	It("has Max", func() {
		Expect(oneDec.Max()).To(BeNumerically("~", 99.9, 1e-9))
		Expect(twoDec.Max()).To(BeNumerically("~", 9.99, 1e-9))
		Expect(status.Max()).To(BeNumerically("~", 99.99, 1e-9))
	})

	DescribeTable("Decode",
		func(f ArgFormat, s string, v float64) {
			x, err := f.Decode([]byte(s))
			Expect(err).NotTo(HaveOccurred())
			Expect(x).To(BeNumerically("~", v, 1e-9))
		},
		Entry("plain", oneDec, "123", 12.3),
		Entry("zero", oneDec, "000", 0.0),
		Entry("max", oneDec, "999", 99.9),
		Entry("two decimals", twoDec, "501", 5.01),
		Entry("status width", status, "5678", 56.78),
	)

	DescribeTable("Decode rejects",
		func(f ArgFormat, s string) {
			_, err := f.Decode([]byte(s))
			Expect(err).To(MatchError(ErrMalformedResponse))
		},
		Entry("short", oneDec, "12"),
		Entry("long", oneDec, "1234"),
		Entry("empty", oneDec, ""),
		Entry("letter", oneDec, "1A3"),
		Entry("sign", oneDec, "-12"),
		Entry("space", oneDec, " 12"),
	)

	DescribeTable("round trips on the grid",
		func(f ArgFormat, top int) {
			scale := math.Pow10(f.Decimals)
			for n := 0; n <= top; n++ {
				x := float64(n) / scale
				s, err := f.Encode(x)
				Expect(err).NotTo(HaveOccurred())
				Expect(s).To(HaveLen(f.Digits))
				y, err := f.Decode([]byte(s))
				Expect(err).NotTo(HaveOccurred())
				Expect(y).To(BeNumerically("~", x, 1e-9))
			}
		},
		Entry("one decimal", oneDec, 999),
		Entry("two decimals", twoDec, 999),
		Entry("status", status, 9999),
	)
})
