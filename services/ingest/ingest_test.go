// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

const goTestStream = `{"Action":"start","Package":"example.com/calc"}
{"Action":"run","Package":"example.com/calc","Test":"TestAdd"}
{"Action":"output","Package":"example.com/calc","Test":"TestAdd","Output":"=== RUN   TestAdd\n"}
{"Action":"output","Package":"example.com/calc","Test":"TestAdd","Output":"--- PASS: TestAdd (0.01s)\n"}
{"Action":"pass","Package":"example.com/calc","Test":"TestAdd","Elapsed":0.01}
{"Action":"run","Package":"example.com/calc","Test":"TestDiv"}
{"Action":"output","Package":"example.com/calc","Test":"TestDiv","Output":"=== RUN   TestDiv\n"}
{"Action":"output","Package":"example.com/calc","Test":"TestDiv","Output":"    calc_test.go:12: division by zero\n"}
{"Action":"output","Package":"example.com/calc","Test":"TestDiv","Output":"--- FAIL: TestDiv (0.20s)\n"}
{"Action":"fail","Package":"example.com/calc","Test":"TestDiv","Elapsed":0.2}
{"Action":"run","Package":"example.com/calc","Test":"TestDiv/negative"}
{"Action":"skip","Package":"example.com/calc","Test":"TestDiv/negative","Elapsed":0}
# example.com/broken
broken.go:3:1: syntax error
{"Action":"run","Package":"example.com/calc","Test":"TestHang"}
{"Action":"output","Package":"example.com/calc","Test":"TestHang","Output":"panic: test timed out after 10m0s\n"}
{"Action":"fail","Package":"example.com/calc","Elapsed":600}
`

func TestFromGoTest(t *testing.T) {
	s, err := FromGoTest(strings.NewReader(goTestStream), Options{})
	require.NoError(t, err)

	require.Equal(t, 4, s.Len())
	assert.Equal(t, 4, s.Collected)

	byID := map[string]snapshot.TestRecord{}
	var ids []string
	for _, r := range s.Tests {
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{
		"example.com/calc::TestAdd",
		"example.com/calc::TestDiv",
		"example.com/calc::TestDiv/negative",
		"example.com/calc::TestHang",
	}, ids)

	add := byID["example.com/calc::TestAdd"]
	assert.Equal(t, "passed", add.Outcome)
	assert.InDelta(t, 0.01, add.Duration, 1e-9)
	assert.Empty(t, add.Sig)

	div := byID["example.com/calc::TestDiv"]
	assert.Equal(t, "failed", div.Outcome)
	assert.Equal(t, snapshot.FailureSignature("calc_test.go:12: division by zero"), div.Sig)

	assert.Equal(t, "skipped", byID["example.com/calc::TestDiv/negative"].Outcome)

	hang := byID["example.com/calc::TestHang"]
	assert.Equal(t, "failed", hang.Outcome, "unfinished tests count as failed")
	assert.Equal(t, snapshot.FailureSignature("panic: test timed out after 10m0s"), hang.Sig)
}

func TestFromGoTest_RerunKeepsLast(t *testing.T) {
	stream := `{"Action":"run","Package":"p","Test":"TestFlaky"}
{"Action":"fail","Package":"p","Test":"TestFlaky","Elapsed":0.1}
{"Action":"run","Package":"p","Test":"TestFlaky"}
{"Action":"pass","Package":"p","Test":"TestFlaky","Elapsed":0.3}
`
	s, err := FromGoTest(strings.NewReader(stream), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, "passed", s.Tests[0].Outcome)
	assert.InDelta(t, 0.3, s.Tests[0].Duration, 1e-9)
}

func TestFromGoTest_Normalize(t *testing.T) {
	stream := `{"Action":"pass","Package":"example.com/x/calc","Test":"TestAdd","Elapsed":0}
{"Action":"pass","Package":"example.com/x/calc","Test":"TestTable/[case1]","Elapsed":0}
`
	s, err := FromGoTest(strings.NewReader(stream), Options{Normalize: snapshot.NormalizeBasename})
	require.NoError(t, err)
	assert.Equal(t, "calc::TestAdd", s.Tests[0].ID)
}

func TestFromGoTest_NoTests(t *testing.T) {
	_, err := FromGoTest(strings.NewReader(`{"Action":"start","Package":"p"}`+"\nnot json\n"), Options{})
	assert.ErrorIs(t, err, ErrNoTests)
}

const junitDoc = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="calc" tests="4">
    <testcase classname="tests/test_calc.py" name="test_add" time="0.012"/>
    <testcase classname="tests/test_calc.py" name="test_div" time="0.5">
      <failure message="ZeroDivisionError: division by zero" type="ZeroDivisionError">Traceback...</failure>
    </testcase>
    <testsuite name="nested">
      <testcase classname="tests/test_io.py" name="test_read[big]" time="bogus">
        <error>IOError: disk full
more detail</error>
      </testcase>
    </testsuite>
    <testcase classname="tests/test_calc.py" name="test_pow" time="0">
      <skipped message="not on this platform"/>
    </testcase>
    <testcase name="standalone" time="1.5"/>
    <testcase classname="orphan"/>
  </testsuite>
</testsuites>`

func TestFromJUnit(t *testing.T) {
	s, err := FromJUnit(strings.NewReader(junitDoc), Options{})
	require.NoError(t, err)
	require.Equal(t, 5, s.Len())

	want := []struct {
		id      string
		outcome string
		dur     float64
	}{
		{"tests/test_calc.py::test_add", "passed", 0.012},
		{"tests/test_calc.py::test_div", "failed", 0.5},
		{"tests/test_io.py::test_read[big]", "failed", 0},
		{"tests/test_calc.py::test_pow", "skipped", 0},
		{"standalone", "passed", 1.5},
	}
	for i, w := range want {
		r := s.Tests[i]
		assert.Equal(t, w.id, r.ID)
		assert.Equal(t, w.outcome, r.Outcome, w.id)
		assert.InDelta(t, w.dur, r.Duration, 1e-9, w.id)
	}

	assert.Equal(t, snapshot.FailureSignature("ZeroDivisionError: division by zero"), s.Tests[1].Sig)
	assert.Equal(t, snapshot.FailureSignature("IOError: disk full"), s.Tests[2].Sig)
}

func TestFromJUnit_Normalize(t *testing.T) {
	s, err := FromJUnit(strings.NewReader(junitDoc), Options{Normalize: snapshot.NormalizeNoParams})
	require.NoError(t, err)
	assert.Equal(t, "tests/test_io.py::test_read", s.Tests[2].ID)
}

func TestFromJUnit_SingleSuiteRoot(t *testing.T) {
	doc := `<testsuite><testcase classname="a" name="b"/></testsuite>`
	s, err := FromJUnit(strings.NewReader(doc), Options{})
	require.NoError(t, err)
	assert.Equal(t, "a::b", s.Tests[0].ID)
}

func TestFromJUnit_Errors(t *testing.T) {
	_, err := FromJUnit(strings.NewReader(`<testsuites></testsuites>`), Options{})
	assert.ErrorIs(t, err, ErrNoTests)

	_, err = FromJUnit(strings.NewReader(`<testsuite><testcase name="x">`), Options{})
	assert.Error(t, err)
}
