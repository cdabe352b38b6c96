package nrepltest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/luma/nrepl/bencode"
)

var errUnbalanced = errors.New("EOF while reading")

// read splits code into forms. A form is either an atom (string) or a list
// ([]interface{}).
func read(code string) ([]interface{}, error) {
	tokens := strings.Fields(strings.NewReplacer("(", " ( ", ")", " ) ").Replace(code))

	var forms []interface{}
	for len(tokens) > 0 {
		form, rest, err := readForm(tokens)
		if err != nil {
			return nil, err
		}

		forms = append(forms, form)
		tokens = rest
	}

	return forms, nil
}

func readForm(tokens []string) (interface{}, []string, error) {
	switch tokens[0] {
	case ")":
		return nil, nil, errors.New("Unmatched delimiter: )")

	case "(":
		var list []interface{}
		tokens = tokens[1:]

		for {
			if len(tokens) == 0 {
				return nil, nil, errUnbalanced
			}

			if tokens[0] == ")" {
				return list, tokens[1:], nil
			}

			form, rest, err := readForm(tokens)
			if err != nil {
				return nil, nil, err
			}

			list = append(list, form)
			tokens = rest
		}
	}

	return tokens[0], tokens[1:], nil
}

// evalForm evaluates one form and returns its printed value.
func (c *peerConn) evalForm(msg *bencode.Dict, sess *session, form interface{}) (string, error) {
	switch f := form.(type) {
	case string:
		if f == "*1" {
			c.server.mu.Lock()
			defer c.server.mu.Unlock()
			return sess.last, nil
		}

		if _, err := strconv.ParseInt(f, 10, 64); err == nil {
			return f, nil
		}

		if f == "nil" {
			return f, nil
		}

		return "", fmt.Errorf("Unable to resolve symbol: %s in this context", f)

	case []interface{}:
		if len(f) == 0 {
			return "()", nil
		}

		fn, ok := f[0].(string)
		if !ok {
			return "", errors.New("cannot call a list")
		}

		args := make([]string, 0, len(f)-1)
		for _, arg := range f[1:] {
			v, err := c.evalForm(msg, sess, arg)
			if err != nil {
				return "", err
			}
			args = append(args, v)
		}

		switch fn {
		case "+", "-", "*":
			return arithmetic(fn, args)

		case "println":
			c.send(reply(msg).Set("out", strings.Join(args, " ")+"\n"))
			return "nil", nil

		case "sleep":
			if len(args) != 1 {
				return "", errors.New("sleep needs a duration")
			}

			ms, err := strconv.Atoi(args[0])
			if err != nil {
				return "", fmt.Errorf("bad duration %q", args[0])
			}

			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-c.server.stop:
			}

			return "nil", nil

		case "later":
			if len(args) == 0 {
				return "", errors.New("later needs a delay")
			}

			ms, err := strconv.Atoi(args[0])
			if err != nil {
				return "", fmt.Errorf("bad delay %q", args[0])
			}

			out := reply(msg).Set("out", strings.Join(args[1:], " ")+"\n")

			c.server.loopWaiter.Add(1)
			go func() {
				defer c.server.loopWaiter.Done()

				select {
				case <-time.After(time.Duration(ms) * time.Millisecond):
					c.send(out)
				case <-c.server.stop:
				}
			}()

			return "nil", nil
		}

		return "", fmt.Errorf("Unable to resolve symbol: %s in this context", fn)
	}

	return "", fmt.Errorf("cannot evaluate %v", form)
}

func arithmetic(fn string, args []string) (string, error) {
	nums := make([]int64, len(args))
	for i, arg := range args {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return "", fmt.Errorf("class java.lang.ClassCastException: %s is not a number", arg)
		}
		nums[i] = n
	}

	var result int64
	switch fn {
	case "+":
		for _, n := range nums {
			result += n
		}

	case "*":
		result = 1
		for _, n := range nums {
			result *= n
		}

	case "-":
		if len(nums) == 0 {
			return "", errors.New("Wrong number of args (0) passed to: clojure.core/-")
		}

		result = nums[0]
		if len(nums) == 1 {
			result = -result
		}
		for _, n := range nums[1:] {
			result -= n
		}
	}

	return strconv.FormatInt(result, 10), nil
}
