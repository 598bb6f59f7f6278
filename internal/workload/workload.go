package workload

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/getsentry/calltree/internal/calltree"
)

const (
	DefaultStopProbability = 0.05
	DefaultMaxSleep        = 20 * time.Millisecond
)

type Options struct {
	// Seed of the random source. 0 seeds from the current time.
	Seed int64
	// StopProbability is the chance for a call to return without recursing.
	StopProbability float64
	// MaxSleep bounds the random pause taken by every call.
	MaxSleep time.Duration
	// MaxDepth stops the recursion at this depth when positive.
	MaxDepth int
}

// Application is a synthetic program whose three functions call each other at
// random until one of them decides to stop. Every call is recorded in tree.
type Application struct {
	tree    *calltree.Tree
	args    []string
	rnd     *rand.Rand
	options Options
	depth   int
}

// Args returns the ten arguments used by the job-th application: "100*job"
// up to "100*job+9".
func Args(job int) []string {
	args := make([]string, 0, 10)
	for i := 100 * job; i < 100*job+10; i++ {
		args = append(args, strconv.Itoa(i))
	}
	return args
}

func NewApplication(tree *calltree.Tree, args []string, options Options) *Application {
	seed := options.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if len(args) == 0 {
		args = []string{""}
	}
	return &Application{
		tree:    tree,
		args:    args,
		rnd:     rand.New(rand.NewSource(seed)),
		options: options,
	}
}

// Start runs the application until the random recursion stops.
func (a *Application) Start() error {
	return a.abc(a.nextArg())
}

func (a *Application) nextArg() string {
	return a.args[a.rnd.Intn(len(a.args))]
}

func (a *Application) stop() bool {
	if a.options.MaxDepth > 0 && a.depth >= a.options.MaxDepth {
		return true
	}
	return a.rnd.Float64() < a.options.StopProbability
}

func (a *Application) sleep() {
	if a.options.MaxSleep <= 0 {
		return
	}
	time.Sleep(time.Duration(a.rnd.Int63n(int64(a.options.MaxSleep))))
}

// step records a call to name and then either stops or calls one of the two
// other functions.
func (a *Application) step(name, arg string, left, right func(string) error) (err error) {
	call, err := a.tree.BeginCall(name, arg)
	if err != nil {
		return err
	}
	a.depth++
	defer func() {
		a.depth--
		if endErr := call.End(); err == nil {
			err = endErr
		}
	}()

	a.sleep()
	switch {
	case a.stop():
		return nil
	case a.rnd.Intn(2) == 0:
		return left(a.nextArg())
	default:
		return right(a.nextArg())
	}
}

func (a *Application) abc(s string) error {
	return a.step("abc", s, a.def, a.xyz)
}

func (a *Application) def(s string) error {
	return a.step("def", s, a.abc, a.xyz)
}

func (a *Application) xyz(s string) error {
	return a.step("xyz", s, a.abc, a.def)
}
