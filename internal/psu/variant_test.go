package psu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/shaunagostinho/psudash/internal/psu"
)

var _ = Describe("Variant", func() {
	DescribeTable("properties",
		func(v *Variant, model string, maxV, maxI, vDec, iDec int) {
			Expect(v.Model()).To(Equal(model))
			Expect(v.String()).To(Equal(model))
			Expect(v.NominalMaxVoltage()).To(Equal(maxV))
			Expect(v.NominalMaxCurrent()).To(Equal(maxI))
			Expect(v.VoltageDecimals()).To(Equal(vDec))
			Expect(v.CurrentDecimals()).To(Equal(iDec))
		},
		Entry("BK1685B", BK1685B, "BK1685B", 60, 5, 1, 2),
		Entry("BK1687B", BK1687B, "BK1687B", 36, 10, 1, 1),
		Entry("BK1688B", BK1688B, "BK1688B", 18, 20, 1, 1),
	)

	It("lists the models", func() {
		Expect(Variants()).To(HaveExactElements(BK1685B, BK1687B, BK1688B))
	})

	It("returns a copy of the list", func() {
		l := Variants()
		l[0] = nil
		Expect(Variants()[0]).To(BeIdenticalTo(BK1685B))
	})

	DescribeTable("LookupVariant",
		func(name string, v *Variant, ok bool) {
			got, found := LookupVariant(name)
			Expect(found).To(Equal(ok))
			if ok {
				Expect(got).To(BeIdenticalTo(v))
			} else {
				Expect(got).To(BeNil())
			}
		},
		Entry("exact", "BK1687B", BK1687B, true),
		Entry("lower case", "bk1688b", BK1688B, true),
		Entry("unknown", "BK1689B", nil, false),
		Entry("auto", "auto", nil, false),
	)

	DescribeTable("VariantForMaxVoltage",
		func(volts float64, v *Variant) {
			if v == nil {
				Expect(VariantForMaxVoltage(volts)).To(BeNil())
			} else {
				Expect(VariantForMaxVoltage(volts)).To(BeIdenticalTo(v))
			}
		},
		Entry("1685B nominal", 60.0, BK1685B),
		Entry("1685B typical", 60.1, BK1685B),
		Entry("1685B top of band", 69.9, BK1685B),
		Entry("above 1685B band", 70.0, nil),
		Entry("1687B nominal", 36.0, BK1687B),
		Entry("1687B typical", 36.5, BK1687B),
		Entry("above 1687B band", 46.0, nil),
		Entry("between bands", 47.2, nil),
		Entry("1688B nominal", 18.0, BK1688B),
		Entry("1688B top of band", 27.9, BK1688B),
		Entry("below 1688B", 17.9, nil),
		Entry("zero", 0.0, nil),
	)
})
