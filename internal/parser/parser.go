// Package parser reads question-bank Markdown files.
//
// A file holds blocks separated by a line containing only "---":
//
//	T: algebra
//	Q: What is 2 + 2?
//	O: 3
//	O: 4
//	A: 2
//	E: Two plus two is four.
//
// Q and E may continue over several lines. A is a 1-based option number or a
// letter. A T line carries over to the following blocks of the same file.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/examprep/internal/domain"
)

const (
	topicPrefix       = "T:"
	questionPrefix    = "Q:"
	optionPrefix      = "O:"
	answerPrefix      = "A:"
	explanationPrefix = "E:"
	separator         = "---"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingOption
	readingAnswer
	readingExplanation
)

var validate = validator.New()

// Problem describes a block that was skipped because it is not a valid question.
type Problem struct {
	Line int // first line of the block
	Err  error
}

func (p Problem) Error() string {
	return fmt.Sprintf("line %d: %v", p.Line, p.Err)
}

// ParseFile reads a file from the given path and extracts all questions.
func ParseFile(path string) ([]domain.Question, []Problem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return Parse(file)
}

type block struct {
	line        int
	topic       string
	prompt      []string
	options     []string
	answer      string
	explanation []string
	touched     bool
}

// Parse reads from an io.Reader and extracts all questions. Invalid blocks
// are returned as problems; the error is only set when reading fails.
func Parse(r io.Reader) ([]domain.Question, []Problem, error) {
	scanner := bufio.NewScanner(r)
	var (
		questions []domain.Question
		problems  []Problem
		topic     string
		current   block
		lineNo    int
	)
	currentState := seeking

	finishBlock := func() {
		if current.touched {
			q, err := current.question()
			if err != nil {
				problems = append(problems, Problem{Line: current.line, Err: err})
			} else {
				questions = append(questions, q)
			}
		}
		current = block{topic: topic}
		currentState = seeking
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if strings.TrimSpace(line) == separator {
			finishBlock()
			continue
		}

		switch {
		case strings.HasPrefix(line, topicPrefix):
			topic = field(line, topicPrefix)
			current.topic = topic
			currentState = seeking
		case strings.HasPrefix(line, questionPrefix):
			if len(current.prompt) > 0 { // A second question starts a new block
				finishBlock()
			}
			current.start(lineNo)
			currentState = readingQuestion
			current.prompt = append(current.prompt, field(line, questionPrefix))
		case strings.HasPrefix(line, optionPrefix):
			current.start(lineNo)
			currentState = readingOption
			current.options = append(current.options, field(line, optionPrefix))
		case strings.HasPrefix(line, answerPrefix):
			current.start(lineNo)
			currentState = readingAnswer
			current.answer = field(line, answerPrefix)
		case strings.HasPrefix(line, explanationPrefix):
			current.start(lineNo)
			currentState = readingExplanation
			current.explanation = append(current.explanation, field(line, explanationPrefix))
		default:
			switch currentState {
			case readingQuestion:
				current.prompt = append(current.prompt, line)
			case readingExplanation:
				current.explanation = append(current.explanation, line)
			case readingOption:
				if strings.TrimSpace(line) != "" {
					last := len(current.options) - 1
					current.options[last] += "\n" + line
				}
			}
		}
	}

	finishBlock() // Finish the very last block in the file

	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	return questions, problems, nil
}

func (b *block) start(line int) {
	if !b.touched {
		b.touched = true
		b.line = line
	}
}

func (b *block) question() (domain.Question, error) {
	q := domain.Question{
		TopicID:     b.topic,
		Prompt:      strings.TrimSpace(strings.Join(b.prompt, "\n")),
		Explanation: strings.TrimSpace(strings.Join(b.explanation, "\n")),
		OptionCount: len(b.options),
	}
	for _, o := range b.options {
		q.Options = append(q.Options, strings.TrimSpace(o))
	}

	correct, err := parseAnswer(b.answer)
	if err != nil {
		return domain.Question{}, err
	}
	q.CorrectOption = correct

	if err := validate.Struct(q); err != nil {
		return domain.Question{}, describe(err)
	}
	return q, nil
}

// field strips the prefix and one following space.
func field(line, prefix string) string {
	content := line[len(prefix):]
	if strings.HasPrefix(content, " ") {
		content = content[1:]
	}
	return content
}

// parseAnswer turns "2" or "B" into the zero-based option index 1.
func parseAnswer(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("missing answer")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n - 1, nil
	}
	if len(s) == 1 {
		c := strings.ToUpper(s)[0]
		if c >= 'A' && c <= 'Z' {
			return int(c - 'A'), nil
		}
	}
	return 0, fmt.Errorf("answer %q is neither an option number nor a letter", s)
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.StructField()
		if i := strings.IndexByte(name, '['); i >= 0 {
			name = name[:i]
		}
		switch name {
		case "TopicID":
			msgs = append(msgs, "missing topic")
		case "Prompt":
			msgs = append(msgs, "missing question")
		case "Options":
			if fe.Tag() == "min" {
				msgs = append(msgs, "needs at least 2 options")
			} else {
				msgs = append(msgs, "empty option")
			}
		case "CorrectOption":
			msgs = append(msgs, "answer does not match an option")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
