package iocli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var _ IO = (*Stdio)(nil)

// Stdio реализация IO поверх потоков процесса.
// Reader общий для всех вызовов, чтобы буферизованный ввод не терялся между запросами.
type Stdio struct {
	in     *bufio.Reader
	out    io.Writer
	inFile *os.File // nil если ввод не файл
}

// NewStdio creates IO bound to os.Stdin and os.Stdout
func NewStdio() *Stdio {
	return NewStdioWith(os.Stdin, os.Stdout)
}

// NewStdioWith creates IO over arbitrary streams
func NewStdioWith(in io.Reader, out io.Writer) *Stdio {
	s := &Stdio{
		in:  bufio.NewReader(in),
		out: out,
	}
	if f, ok := in.(*os.File); ok {
		s.inFile = f
	}
	return s
}

func (s *Stdio) Println(a ...any) {
	_, _ = fmt.Fprintln(s.out, a...)
}

func (s *Stdio) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(s.out, format, a...)
}

func (s *Stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *Stdio) ReadInput(prompt string) (string, error) {
	s.Printf("%s", prompt)
	input, err := s.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// ReadPassword читает пароль без эха, если ввод терминал.
// Иначе (pipe, тесты) пароль читается как обычная строка.
func (s *Stdio) ReadPassword(prompt string) (string, error) {
	if s.inFile == nil || !term.IsTerminal(int(s.inFile.Fd())) {
		return s.ReadInput(prompt)
	}

	s.Printf("%s", prompt)
	pwBytes, err := term.ReadPassword(int(s.inFile.Fd()))
	s.Println("")
	if err != nil {
		return "", err
	}
	return string(pwBytes), nil
}
