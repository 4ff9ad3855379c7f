package log

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gbytes"
)

type entry struct {
	level  Level
	fields Fields
	msg    string
}

type recordingSink struct {
	entries []entry
}

func (s *recordingSink) Output(callDepth int, l Level, f Fields, msg string) {
	s.entries = append(s.entries, entry{l, f, msg})
}

var _ = Describe("Logger", func() {
	var (
		sink *recordingSink
		l    Logger
	)
	BeforeEach(func() {
		sink = &recordingSink{}
		l = NewLoggerSink(InfoLevel, sink)
	})

	It("filters by level", func() {
		l.Debug("debug")
		l.Infof("info %v", 1)
		l.Warn("warn")
		l.Error("error")
		Expect(sink.entries).To(Equal([]entry{
			{InfoLevel, nil, "info 1"},
			{WarnLevel, nil, "warn"},
			{ErrorLevel, nil, "error"},
		}))
	})

	It("with fields do not modify parent", func() {
		child := l.WithFields(Fields{"conn": 1})
		grandChild := child.WithFields(Fields{"remote": "addr"})
		l.Info("parent")
		grandChild.Info("child")
		Expect(l.Fields()).To(BeEmpty())
		Expect(child.Fields()).To(Equal(Fields{"conn": 1}))
		Expect(sink.entries[0].fields).To(BeEmpty())
		Expect(sink.entries[1].fields).To(Equal(Fields{"conn": 1, "remote": "addr"}))
	})

	It("panic", func() {
		Expect(func() { l.Panicf("test %v", "panic") }).To(Panic())
		Expect(sink.entries).To(HaveLen(1))
	})

	It("std sink writes level and fields", func() {
		buf := NewBuffer()
		l := NewLogger(DebugLevel, buf).WithFields(Fields{"conn": 42})
		l.Debug("message")
		Expect(buf).To(Say(`log_test.go:\d+: DEBUG: \{"conn":42\} message`))
	})

	It("nop", func() {
		NewNop().Error("nothing")
	})
})

var _ = Describe("LevelFromString", func() {
	DescribeTable("valid",
		func(s string, expected Level) {
			Expect(LevelFromString(s)).To(Equal(expected))
		},
		Entry("lower", "debug", DebugLevel),
		Entry("upper", "INFO", InfoLevel),
		Entry("mixed", "Warn", WarnLevel),
		Entry("error", "error", ErrorLevel),
		Entry("fatal", "fatal", FatalLevel),
	)

	It("invalid", func() {
		_, err := LevelFromString("verbose")
		Expect(err).To(HaveOccurred())
	})
})
