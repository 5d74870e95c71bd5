package psu_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/shaunagostinho/psudash/internal/psu"
)

var _ = Describe("DemoDialer", func() {
	var s *Supply

	BeforeEach(func() {
		NewLog()
		s = &Supply{Dialer: &DemoDialer{Variant: BK1687B}, Wait: time.Nanosecond}
		_, err := s.Detect()
		Expect(err).NotTo(HaveOccurred())
	})

	It("is detected as its model", func() {
		Expect(s.CurrentVariant()).To(BeIdenticalTo(BK1687B))
		caps, err := s.Capabilities()
		Expect(err).NotTo(HaveOccurred())
		Expect(caps.MaxVoltage).To(BeNumerically("~", 37.0, 1e-9))
		Expect(caps.MaxCurrent).To(BeNumerically("~", 10.2, 1e-9))
	})

	It("defaults to BK1685B", func() {
		s := &Supply{Dialer: &DemoDialer{}, Wait: time.Nanosecond}
		_, err := s.Detect()
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Name()).To(Equal("BK1685B"))
	})

	It("stores setpoints", func() {
		Expect(s.SetVoltage(12)).To(Succeed())
		Expect(s.SetCurrent(2)).To(Succeed())
		set, err := s.Settings()
		Expect(err).NotTo(HaveOccurred())
		Expect(set.Voltage).To(BeNumerically("~", 12.0, 1e-9))
		Expect(set.Current).To(BeNumerically("~", 2.0, 1e-9))
	})

	It("stores limits", func() {
		Expect(s.SetVoltageLimit(30)).To(Succeed())
		Expect(s.SetCurrentLimit(8.5)).To(Succeed())
		v, err := s.VoltageLimit()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeNumerically("~", 30.0, 1e-9))
		i, err := s.CurrentLimit()
		Expect(err).NotTo(HaveOccurred())
		Expect(i).To(BeNumerically("~", 8.5, 1e-9))
	})

	It("reads zero with the output off", func() {
		st, err := s.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st).To(Equal(Status{Mode: ConstantVoltage}))
	})

	It("regulates voltage into the load", func() {
		Expect(s.SetVoltage(12)).To(Succeed())
		Expect(s.SetCurrent(2)).To(Succeed())
		Expect(s.SetOutput(OutputOn)).To(Succeed())
		st, err := s.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Mode).To(Equal(ConstantVoltage))
		Expect(st.Voltage).To(BeNumerically("~", 12.0, 0.02))
		Expect(st.Current).To(BeNumerically("~", 1.2, 0.01))
	})

	It("limits current into the load", func() {
		Expect(s.SetVoltage(12)).To(Succeed())
		Expect(s.SetCurrent(0.5)).To(Succeed())
		Expect(s.SetOutput(OutputOn)).To(Succeed())
		st, err := s.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Mode).To(Equal(ConstantCurrent))
		Expect(st.Voltage).To(BeNumerically("~", 5.0, 0.02))
		Expect(st.Current).To(BeNumerically("~", 0.5, 0.01))
	})

	It("trips the output over the voltage limit", func() {
		Expect(s.SetVoltage(12)).To(Succeed())
		Expect(s.SetCurrent(2)).To(Succeed())
		Expect(s.SetVoltageLimit(10)).To(Succeed())
		Expect(s.SetOutput(OutputOn)).To(Succeed())
		st, err := s.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Voltage).To(BeZero())
		Expect(st.Current).To(BeZero())
	})

	It("stores and recalls presets", func() {
		in := Presets{{1.5, 0.5}, {9.0, 3.0}, {24.0, 9.9}}
		Expect(s.SetPresets(in)).To(Succeed())
		out, err := s.Presets()
		Expect(err).NotTo(HaveOccurred())
		for i := range in {
			Expect(out[i].Voltage).To(BeNumerically("~", in[i].Voltage, 1e-9))
			Expect(out[i].Current).To(BeNumerically("~", in[i].Current, 1e-9))
		}

		Expect(s.SelectPreset(PresetThree)).To(Succeed())
		set, err := s.Settings()
		Expect(err).NotTo(HaveOccurred())
		Expect(set.Voltage).To(BeNumerically("~", 24.0, 1e-9))
		Expect(set.Current).To(BeNumerically("~", 9.9, 1e-9))
	})

	It("keeps state across redials", func() {
		Expect(s.SetVoltage(7.5)).To(Succeed())
		Expect(s.Close()).To(Succeed())
		set, err := s.Settings()
		Expect(err).NotTo(HaveOccurred())
		Expect(set.Voltage).To(BeNumerically("~", 7.5, 1e-9))
	})

	It("ignores commands it does not know", func() {
		d := &DemoDialer{}
		conn, err := d.Dial(false)
		Expect(err).NotTo(HaveOccurred())
		n, err := conn.Write([]byte("XXXX\r"))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(5))
		Expect(ReadResponse(conn, &Ack{}, nil)).To(MatchError(ErrNoResponse))
	})

	It("ignores bad arguments", func() {
		d := &DemoDialer{}
		conn, _ := d.Dial(false)
		conn.Write([]byte("VOLT1X3\r"))
		Expect(ReadResponse(conn, &Ack{}, nil)).To(MatchError(ErrNoResponse))
	})

	It("fails after close", func() {
		d := &DemoDialer{}
		conn, _ := d.Dial(false)
		Expect(conn.Close()).To(Succeed())
		_, err := conn.Write([]byte("GETD\r"))
		Expect(err).To(HaveOccurred())
	})
})
