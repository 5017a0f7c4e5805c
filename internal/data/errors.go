package data

import (
	"errors"
	"fmt"
)

var (
	ErrRetrieval     = errors.New("falha ao obter dataset")
	ErrImputation    = errors.New("falha na imputação")
	ErrShape         = errors.New("formato inválido")
	ErrUnknownColumn = errors.New("coluna desconhecida")
)

// RetrievalError is returned when the remote source is unreachable or the
// payload does not match the expected schema.
type RetrievalError struct {
	Source string
	Err    error
}

func (e *RetrievalError) Error() string {
	if e == nil {
		return ""
	}
	if e.Source == "" {
		return fmt.Sprintf("%s: %v", ErrRetrieval, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", ErrRetrieval, e.Source, e.Err)
}

func (e *RetrievalError) Unwrap() []error { return []error{ErrRetrieval, e.Err} }

func retrievalf(source, format string, args ...any) error {
	return &RetrievalError{Source: source, Err: fmt.Errorf(format, args...)}
}

// ImputationError reports a column with no value to compute a fill from.
type ImputationError struct {
	Column string
}

func (e *ImputationError) Error() string {
	return fmt.Sprintf("%s: coluna %q não tem valores presentes", ErrImputation, e.Column)
}

func (e *ImputationError) Unwrap() error { return ErrImputation }

// ShapeError reports a reshape that cannot be done, e.g. a row whose length
// is not a perfect square.
type ShapeError struct {
	Op  string
	Msg string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrShape, e.Op, e.Msg)
}

func (e *ShapeError) Unwrap() error { return ErrShape }

// ShapeMismatchError reports matrices whose dimensions do not line up.
type ShapeMismatchError struct {
	Op   string
	Want int
	Got  int
	What string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: %s: %s esperado %d, obtido %d", ErrShape, e.Op, e.What, e.Want, e.Got)
}

func (e *ShapeMismatchError) Unwrap() error { return ErrShape }

// CheckXY verifies that X and y have the same number of rows and that X is
// rectangular and non-empty.
func CheckXY(op string, X [][]float64, y []int) error {
	if len(X) != len(y) {
		return &ShapeMismatchError{Op: op, What: "linhas de y", Want: len(X), Got: len(y)}
	}
	if len(X) == 0 {
		return &ShapeError{Op: op, Msg: "matriz vazia"}
	}
	w := len(X[0])
	if w == 0 {
		return &ShapeError{Op: op, Msg: "nenhuma feature"}
	}
	for i := range X {
		if len(X[i]) != w {
			return &ShapeMismatchError{Op: op, What: fmt.Sprintf("colunas da linha %d", i), Want: w, Got: len(X[i])}
		}
	}
	return nil
}
