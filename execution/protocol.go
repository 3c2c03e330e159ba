// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package execution

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/petmal/codegrade/pkg/logging"
)

//go:embed harness.py
var harnessScript []byte

const (
	harnessFileName = "harness.py"
	programFileName = "program.py"

	maxMessageSize = 4 * 1024 * 1024
)

// errUnexpectedTermination is reported when the interpreter exits without a terminal message.
const errUnexpectedTermination = "execution terminated unexpectedly"

const (
	messagePrint  = "print"
	messageInput  = "input"
	messageChoice = "choice"
	messageDone   = "done"
	messageError  = "error"
)

// harnessMessage is a single JSON line written by the harness.
type harnessMessage struct {
	Type    string  `json:"type"`
	Text    string  `json:"text,omitempty"`
	Name    *string `json:"name,omitempty"`
	Options int     `json:"options,omitempty"`
	Message string  `json:"message,omitempty"`
	Line    int     `json:"line,omitempty"`
}

// hostReply answers an input or choice request.
type hostReply struct {
	Value interface{} `json:"value"`
}

// serve exchanges messages with a running harness until it reports a terminal state
// or its output stream ends. Replies are written to toHarness.
func serve(ctx context.Context, logger logging.Logger, fromHarness io.Reader, toHarness io.Writer, caps Capabilities) Outcome {
	var output strings.Builder
	emit := func(line string) {
		output.WriteString(line)
		output.WriteString("\n")
		caps.print(line)
	}
	reply := func(value interface{}) {
		encoded, err := json.Marshal(hostReply{Value: value})
		if err != nil {
			logger.Error(ctx, logging.LevelWarn, err, "failed to encode reply value %v", value)
			encoded = []byte(`{"value":null}`)
		}
		if _, err := toHarness.Write(append(encoded, '\n')); err != nil {
			logger.Error(ctx, logging.LevelDebug, err, "failed to deliver reply to the program")
		}
	}

	scanner := bufio.NewScanner(fromHarness)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	for scanner.Scan() {
		line := scanner.Text()
		var msg harnessMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Type == "" {
			// Raw writes that bypassed the harness are kept as output.
			emit(line)
			continue
		}

		switch msg.Type {
		case messagePrint:
			emit(msg.Text)
		case messageInput:
			name := ""
			if msg.Name != nil {
				name = *msg.Name
			}
			value := caps.input(name)
			logger.Message(ctx, logging.LevelTrace, "program requested input %q: %v", name, value)
			reply(value)
		case messageChoice:
			value := caps.choice(msg.Options)
			logger.Message(ctx, logging.LevelTrace, "program requested a choice from %d options: %d", msg.Options, value)
			reply(value)
		case messageDone:
			return Outcome{Status: Succeeded, Output: output.String()}
		case messageError:
			return Outcome{Status: Failed, Output: output.String(), Error: msg.Message, Line: msg.Line}
		default:
			logger.Message(ctx, logging.LevelDebug, "ignoring unknown harness message type %q", msg.Type)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		logger.Error(ctx, logging.LevelDebug, err, "failed to read program output")
	}
	return Outcome{Status: Failed, Output: output.String(), Error: errUnexpectedTermination}
}
