package booter

import (
	"fmt"
	"sync"
)

// Boot is a module that can be started and stopped by a Booter.
type Boot interface {
	Start() error
	Stop()
}

type BootFactory struct {
	Id          string
	NewConfig   func() any
	NewInstance func(config any) (Boot, error)
}

var (
	factories     = map[string]*BootFactory{}
	factoriesLock sync.RWMutex
)

// RegisterBootFactory keeps the first factory registered for an id.
func RegisterBootFactory(def *BootFactory) {
	factoriesLock.Lock()
	defer factoriesLock.Unlock()
	if _, exists := factories[def.Id]; !exists {
		factories[def.Id] = def
	}
}

func UnregisterBootFactory(moduleId string) {
	factoriesLock.Lock()
	delete(factories, moduleId)
	factoriesLock.Unlock()
}

func lookupFactory(moduleId string) *BootFactory {
	factoriesLock.RLock()
	defer factoriesLock.RUnlock()
	return factories[moduleId]
}

// Register binds a typed config factory and module constructor to moduleId.
func Register[T any](moduleId string, configFactory func() T, factory func(conf T) (Boot, error)) {
	RegisterBootFactory(&BootFactory{
		Id: moduleId,
		NewConfig: func() any {
			return configFactory()
		},
		NewInstance: func(conf any) (Boot, error) {
			c, ok := conf.(T)
			if !ok {
				return nil, fmt.Errorf("module %s invalid config type: %T", moduleId, conf)
			}
			return factory(c)
		},
	})
}
