package booter

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"sync"
	"syscall"
)

// bootlog writes before any logging module is configured.
var bootlog = log.New(os.Stdout, "[boot] ", log.LstdFlags)

func SetBootLog(w io.Writer) {
	bootlog.SetOutput(w)
}

type Booter interface {
	Startup() error
	Shutdown()

	WaitSignal()
	NotifySignal()

	GetDefinition(id string) *Definition
	GetInstance(id string) Boot
	GetConfig(id string) any

	AddShutdownHook(...func())
}

type State int

const (
	None State = iota
	Starting
	Run
	Stopping
	Stop
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Run:
		return "run"
	case Stopping:
		return "stopping"
	case Stop:
		return "stop"
	default:
		return "none"
	}
}

type wrapper struct {
	definition *Definition
	real       Boot
	conf       any
	state      State
}

type boot struct {
	moduleDefs []*Definition
	wrappers   []*wrapper
	quitChan   chan os.Signal
	quitOnce   sync.Once

	shutdownHooks []func()
}

func NewWithDefinitions(definitions []*Definition) (Booter, error) {
	seen := map[string]bool{}
	for _, def := range definitions {
		if seen[def.Id] {
			return nil, fmt.Errorf("module %s defined more than once", def.Id)
		}
		seen[def.Id] = true
	}
	return &boot{
		moduleDefs: definitions,
		quitChan:   make(chan os.Signal, 1),
	}, nil
}

// Startup instantiates every enabled module, resolves injections
// and starts modules in priority order. A module that
// fails to start stops the ones already running.
func (bt *boot) Startup() error {
	bootlog.Println(len(bt.moduleDefs), "modules defined")
	for _, def := range bt.moduleDefs {
		if def.Disabled {
			bootlog.Println(def.Id, def.Name, "disabled")
			continue
		}
		fact := lookupFactory(def.Id)
		if fact == nil {
			return fmt.Errorf("module %s is not found", def.Id)
		}
		config := fact.NewConfig()
		objName := strings.TrimPrefix(fmt.Sprintf("%T", config), "*")
		if err := EvalObject(objName, config, def.Config); err != nil {
			return fmt.Errorf("config %s, %s", objName, err.Error())
		}
		mod, err := fact.NewInstance(config)
		if err != nil {
			return fmt.Errorf("instance %s, %s", def.Id, err.Error())
		}
		bt.wrappers = append(bt.wrappers, &wrapper{definition: def, real: mod, conf: config})
	}

	for _, wrap := range bt.wrappers {
		for _, inj := range wrap.definition.Injects {
			if err := wrap.inject(inj, bt.wrappers); err != nil {
				return err
			}
		}
	}
	bootlog.Println(len(bt.wrappers), "modules enabled")

	for i, wrap := range bt.wrappers {
		wrap.state = Starting
		bootlog.Println("start", wrap.definition.Id, wrap.definition.Name)
		if err := wrap.real.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				bt.wrappers[j].real.Stop()
				bt.wrappers[j].state = Stop
			}
			return fmt.Errorf("mod start %s, %s", wrap.definition.Id, err.Error())
		}
		wrap.state = Run
	}
	return nil
}

// Shutdown runs shutdown hooks then stops modules in reverse start order.
func (bt *boot) Shutdown() {
	for _, wrap := range bt.wrappers {
		if wrap.state == Run {
			wrap.state = Stopping
		}
	}
	for _, hook := range bt.shutdownHooks {
		hook()
	}
	for i := len(bt.wrappers) - 1; i >= 0; i-- {
		wrap := bt.wrappers[i]
		if wrap.state != Stopping {
			continue
		}
		bootlog.Println("stop", wrap.definition.Id, wrap.definition.Name)
		wrap.real.Stop()
		wrap.state = Stop
	}
}

func (bt *boot) WaitSignal() {
	signal.Notify(bt.quitChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(bt.quitChan)
	<-bt.quitChan
}

func (bt *boot) NotifySignal() {
	bt.quitOnce.Do(func() {
		bt.quitChan <- syscall.SIGINT
	})
}

func (bt *boot) AddShutdownHook(f ...func()) {
	bt.shutdownHooks = append(bt.shutdownHooks, f...)
}

func (bt *boot) GetDefinition(id string) *Definition {
	for _, def := range bt.moduleDefs {
		if def.Id == id {
			return def
		}
	}
	return nil
}

func (bt *boot) GetInstance(id string) Boot {
	if w := bt.find(id); w != nil {
		return w.real
	}
	return nil
}

func (bt *boot) GetConfig(id string) any {
	if w := bt.find(id); w != nil {
		return w.conf
	}
	return nil
}

func (bt *boot) find(idOrName string) *wrapper {
	for _, w := range bt.wrappers {
		if w.definition.Id == idOrName || w.definition.Name == idOrName {
			return w
		}
	}
	return nil
}

func (wrap *wrapper) inject(inj InjectionDef, wrappers []*wrapper) error {
	var target *wrapper
	for _, w := range wrappers {
		if w.definition.Id == inj.Target || w.definition.Name == inj.Target {
			target = w
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%s inject into %s, not found", wrap.definition.Id, inj.Target)
	}
	ptr := reflect.ValueOf(target.real)
	src := reflect.ValueOf(wrap.real)
	if ptr.Kind() == reflect.Pointer {
		field := ptr.Elem().FieldByName(inj.FieldName)
		if field.IsValid() && field.CanSet() {
			if !src.Type().AssignableTo(field.Type()) {
				return fmt.Errorf("%s is not assignable to %s.%s", src.Type(), inj.Target, inj.FieldName)
			}
			bootlog.Println(wrap.definition.Name, "inject into", inj.Target, "by field", inj.FieldName)
			field.Set(src)
			return nil
		}
	}
	setter := ptr.MethodByName(inj.FieldName)
	if !setter.IsValid() || setter.Type().NumIn() != 1 || !src.Type().AssignableTo(setter.Type().In(0)) {
		return fmt.Errorf("%s %s is not accessible", inj.Target, inj.FieldName)
	}
	bootlog.Println(wrap.definition.Name, "inject into", inj.Target, "by method", inj.FieldName)
	setter.Call([]reflect.Value{src})
	return nil
}
