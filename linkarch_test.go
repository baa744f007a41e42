package qnetsim

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const linkArchTestTau = 0.000471

func checkLinkArchDelays(t *testing.T, arch LinkArch, attemptDuration, eprCreationRatio, notifyARatio, notifyBRatio float64) {
	Convey("Its delays at k=1 match the architecture's closed form", func() {
		eprCreation, notifyA, notifyB := arch.Delays(1, 0, linkArchTestTau, 0)
		So(eprCreation, ShouldAlmostEqual, eprCreationRatio*linkArchTestTau, 1e-6)
		So(notifyA, ShouldAlmostEqual, notifyARatio*linkArchTestTau, 1e-6)
		So(notifyB, ShouldAlmostEqual, notifyBRatio*linkArchTestTau, 1e-6)
	})

	Convey("Each additional attempt adds exactly one attempt duration", func() {
		eprCreation1, _, _ := arch.Delays(1, 0, linkArchTestTau, 0)
		eprCreation6, _, _ := arch.Delays(6, 0, linkArchTestTau, 0)
		So(eprCreation6-eprCreation1, ShouldAlmostEqual, 5*attemptDuration*linkArchTestTau, 1e-6)
	})
}

func TestLinkArchDimBK(t *testing.T) {
	Convey("Given the DIM-BK link architecture", t, func() {
		checkLinkArchDelays(t, LinkArchDimBK{}, 2, 0, 2, 2)
	})
}

func TestLinkArchSR(t *testing.T) {
	Convey("Given the SR link architecture", t, func() {
		checkLinkArchDelays(t, LinkArchSR{}, 2, 0, 1, 2)
	})
}

func TestLinkArchSIM(t *testing.T) {
	Convey("Given the SIM link architecture", t, func() {
		checkLinkArchDelays(t, LinkArchSIM{}, 1, 0, 1, 1)
	})
}

func TestLinkArchSuccessProb(t *testing.T) {
	Convey("Given a zero-length fiber", t, func() {
		Convey("SR success probability is just the source/detector efficiency product", func() {
			p := LinkArchSR{}.SuccessProb(0, 0.2, 0.9, 0.8)
			So(p, ShouldAlmostEqual, 0.9*0.8, 1e-9)
		})

		Convey("DIM-BK success probability includes the 0.5 Bell-state-analyzer factor", func() {
			p := LinkArchDimBK{}.SuccessProb(0, 0.2, 1.0, 1.0)
			So(p, ShouldAlmostEqual, 0.5, 1e-9)
		})
	})

	Convey("Given a longer fiber, success probability decreases", t, func() {
		short := LinkArchSR{}.SuccessProb(1, 0.2, 0.9, 0.8)
		long := LinkArchSR{}.SuccessProb(100, 0.2, 0.9, 0.8)
		So(long, ShouldBeLessThan, short)
	})
}

func TestLinkArchDimBKSeq(t *testing.T) {
	Convey("Given the DIM-BK-Seq variant", t, func() {
		Convey("Its success probability matches plain DIM-BK", func() {
			seq := LinkArchDimBKSeq{}
			plain := LinkArchDimBK{}
			So(seq.SuccessProb(10, 0.2, 0.9, 0.8), ShouldAlmostEqual, plain.SuccessProb(10, 0.2, 0.9, 0.8), 1e-12)
		})

		Convey("Its attempt cadence differs from plain DIM-BK", func() {
			seq := LinkArchDimBKSeq{}
			e1, _, _ := seq.Delays(2, 0, linkArchTestTau, 0)
			e2, _, _ := seq.Delays(3, 0, linkArchTestTau, 0)
			So(e2-e1, ShouldAlmostEqual, 5*linkArchTestTau, 1e-6)
		})
	})
}
