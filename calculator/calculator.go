// Package calculator evaluates aperture macro arithmetic expressions.
// Operators are + - x X /, parentheses group, $n refers to a macro variable.
package calculator

import (
	"errors"
	"strconv"
	"strings"
)

type OpCode int

const (
	Nop OpCode = iota
	Add
	Mul
)

func (oc OpCode) String() string {
	switch oc {
	case Add:
		return "+ "
	case Mul:
		return "x "
	case Nop:
		return "<nop> "
	default:
		return "bad OpCode "
	}
}

var (
	ErrEmptyExpression = errors.New("calculator: empty expression")
	ErrParentheses     = errors.New("calculator: unbalanced parentheses")
)

type Stack struct {
	data []int
}

func NewStack() *Stack {
	return &Stack{}
}

func (stack *Stack) Push(val int) {
	stack.data = append(stack.data, val)
}

func (stack *Stack) Pop() (int, bool) {
	slen := len(stack.data)
	if slen == 0 {
		return 0, false
	}
	retVal := stack.data[slen-1]
	stack.data = stack.data[:slen-1]
	return retVal, true
}

func (stack *Stack) Len() int {
	return len(stack.data)
}

// CalcExpression evaluates str. vars maps variable numbers ($1 -> 1) to values,
// an undefined variable evaluates to 0.
func CalcExpression(str string, vars map[int]float64) (float64, error) {
	str = strings.Join(strings.Fields(str), "")
	if str == "" {
		return 0, ErrEmptyExpression
	}
	varStorage := make(map[string]float64, len(vars))
	for k, v := range vars {
		varStorage["$"+strconv.Itoa(k)] = v
	}
	const leftPar = '('
	const rightPar = ')'
	tempVarId := 0
	str = "(" + str + ")"
	for {
		stack := NewStack()
		reduced := false
		for i := 0; i < len(str); i++ {
			if str[i] == leftPar {
				stack.Push(i)
				continue
			}
			if str[i] == rightPar {
				lPar, ok := stack.Pop()
				if !ok {
					return 0, ErrParentheses
				}
				tf, err := TokenizeFormulae(str[lPar+1:i], varStorage)
				if err != nil {
					return 0, err
				}
				valName := "$$" + strconv.Itoa(tempVarId)
				tempVarId++
				varStorage[valName] = CalcTokenizedFormulae(tf)
				str = str[:lPar] + valName + str[i+1:]
				reduced = true
				break
			}
		}
		if !reduced {
			if stack.Len() != 0 || strings.ContainsRune(str, leftPar) {
				return 0, ErrParentheses
			}
			break
		}
	}
	val, ok := varStorage[str]
	if !ok || !strings.HasPrefix(str, "$$") {
		return 0, errors.New("calculator: unable to reduce " + str)
	}
	return val, nil
}

type TokenizedFormula struct {
	value     float64
	operation OpCode
}

func (tf *TokenizedFormula) String() string {
	return strconv.FormatFloat(tf.value, 'f', 10, 64) + " " + tf.operation.String()
}

// TokenizeFormulae splits a parenthesis-free expression into operands.
// Subtraction is stored as addition of a negated operand and division as
// multiplication by the inverse, so CalcTokenizedFormulae only sums products.
func TokenizeFormulae(str string, varStorage map[string]float64) ([]TokenizedFormula, error) {
	retVal := make([]TokenizedFormula, 0, 4)
	tokenStart := true
	needInvNext := false
	needNegNext := false
	convString := ""
	emit := func(op OpCode) error {
		floatVal, err := operandValue(convString, varStorage)
		if err != nil {
			return errors.New("calculator: unable to parse " + str)
		}
		if needInvNext {
			floatVal = 1 / floatVal
		}
		if needNegNext {
			floatVal = -floatVal
		}
		retVal = append(retVal, TokenizedFormula{floatVal, op})
		return nil
	}
	for i := 0; i < len(str); i++ {
		c := str[i]
		if tokenStart && (c == '+' || c == '-') {
			tokenStart = false
			convString += string(c)
			continue
		}
		var opCode OpCode
		var needNN, needIN bool
		switch c {
		case '+':
			opCode = Add
		case '-':
			opCode = Add
			needNN = true
		case '/':
			opCode = Mul
			needIN = true
		case 'x', 'X':
			opCode = Mul
		default:
			convString += string(c)
			tokenStart = false
			continue
		}
		if err := emit(opCode); err != nil {
			return nil, err
		}
		tokenStart = true
		convString = ""
		needInvNext = needIN
		needNegNext = needNN
	}
	// last token ...
	if err := emit(Nop); err != nil {
		return nil, err
	}
	return retVal, nil
}

func operandValue(s string, varStorage map[string]float64) (float64, error) {
	neg := false
	for len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			neg = !neg
		}
		s = s[1:]
	}
	var v float64
	if strings.HasPrefix(s, "$") {
		if len(s) < 2 {
			return 0, ErrEmptyExpression
		}
		v = varStorage[s]
	} else {
		var err error
		if v, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, err
		}
	}
	if neg {
		v = -v
	}
	return v, nil
}

// CalcTokenizedFormulae sums the products of consecutive multiplied operands.
func CalcTokenizedFormulae(tf []TokenizedFormula) float64 {
	retVal := 0.0
	mulVal := 1.0
	for _, t := range tf {
		mulVal *= t.value
		if t.operation != Mul {
			retVal += mulVal
			mulVal = 1.0
		}
	}
	return retVal
}
