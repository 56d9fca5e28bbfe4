package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/bill-assistant/internal/bill"
	"github.com/zombor/bill-assistant/internal/ocr"
	"github.com/zombor/bill-assistant/internal/session"
)

func newChatCommand(rootFlags *ff.FlagSet, cfg *rootConfig) *ff.Command {
	fs := ff.NewFlagSet("chat").SetParent(rootFlags)
	var (
		imagePath = fs.StringLong("image", "", "Bill image to OCR (JPEG, PNG, GIF, HEIC, HEIF or PDF)")
		textPath  = fs.StringLong("text-file", "", "File holding already recognized bill text")
	)

	return &ff.Command{
		Name:      "chat",
		Usage:     "bill-assistant chat [FLAGS]",
		ShortHelp: "structure one bill and ask questions about it in the terminal",
		LongHelp: "Commands:\n" +
			"  :load <path>    structure another text file\n" +
			"  :history        print the questions asked so far\n" +
			"  :export <path>  write the structured bill as JSON\n" +
			"  :quit           leave",
		Flags: fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := cfg.setupLogging(); err != nil {
				return err
			}
			if (*imagePath == "") == (*textPath == "") {
				return errors.New("exactly one of --image or --text-file is required")
			}
			return chat(ctx, cfg, *imagePath, *textPath, os.Stdin, os.Stdout)
		},
	}
}

func chat(ctx context.Context, cfg *rootConfig, imagePath, textPath string, in io.Reader, out io.Writer) error {
	generator, err := cfg.newGenerator()
	if err != nil {
		return fmt.Errorf("initializing LLM: %w", err)
	}
	defer generator.Close()

	var ocrText string
	if imagePath != "" {
		recognizer, err := cfg.newRecognizer()
		if err != nil {
			return fmt.Errorf("initializing OCR: %w", err)
		}
		defer recognizer.Close()
		if ocrText, err = recognizeFile(ctx, recognizer, imagePath); err != nil {
			return err
		}
	} else {
		data, err := os.ReadFile(textPath)
		if err != nil {
			return fmt.Errorf("reading text file: %w", err)
		}
		ocrText = string(data)
	}

	service := bill.NewService(generator)
	sess := session.New(service, service)
	slog.Debug("Chat session started", "session_id", sess.ID())

	if err := submit(ctx, sess, ocrText, out); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		command, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch {
		case line == "":
		case command == ":quit":
			return nil
		case command == ":history":
			for _, turn := range sess.History() {
				fmt.Fprintf(out, "%s: %s\n", turn.Speaker, turn.Message)
			}
		case command == ":export":
			if err := exportFile(sess, arg); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Bill written to %s\n", arg)
		case command == ":load":
			data, err := os.ReadFile(arg)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if err := submit(ctx, sess, string(data), out); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		default:
			answer, err := sess.Ask(ctx, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, answer)
		}
	}
}

func recognizeFile(ctx context.Context, recognizer ocr.Recognizer, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	text, err := recognizer.Recognize(ctx, data, "")
	if err != nil {
		return "", fmt.Errorf("recognizing image: %w", err)
	}
	return text, nil
}

// submit structures ocrText and prints the raw reply and the parsed bill
func submit(ctx context.Context, sess *session.Session, ocrText string, out io.Writer) error {
	result, called, err := sess.Submit(ctx, ocrText)
	if err != nil {
		return err
	}
	if !called {
		fmt.Fprintln(out, "Bill unchanged.")
		return nil
	}

	fmt.Fprintf(out, "Raw response:\n%s\n\n", result.RawText)
	if result.Parsed == nil {
		fmt.Fprintf(out, "Could not parse a bill from the response: %v\n", result.Err)
		return nil
	}
	data, err := json.MarshalIndent(result.Parsed, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting bill: %w", err)
	}
	fmt.Fprintf(out, "Structured bill:\n%s\n\n", data)
	return nil
}

func exportFile(sess *session.Session, path string) error {
	if path == "" {
		return errors.New("usage: :export <path>")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := sess.Export(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
