package filesystem

import (
	"context"
	"os"
	"os/exec"
	"sort"
	"strings"
	"subuk/vagrantd/compute"
	"subuk/vagrantd/util"
	"time"

	"github.com/rs/zerolog"
)

const EnvPrefix = "VAGRANTD_"

// AnyEvent subscribes a hook to every published event.
const AnyEvent = "*"

type hookSubscription struct {
	Event     string
	Script    string
	Mandatory bool
}

func (sub hookSubscription) matches(event compute.Event) bool {
	return sub.Event == AnyEvent || sub.Event == event.Name()
}

// ScriptedEventBroker runs shell hooks for node lifecycle events. Event
// fields are exported as VAGRANTD_<KEY> environment variables.
type ScriptedEventBroker struct {
	logger  zerolog.Logger
	timeout time.Duration
	subs    []hookSubscription
}

func NewScriptedEventBroker(logger zerolog.Logger, timeout time.Duration) *ScriptedEventBroker {
	return &ScriptedEventBroker{
		logger:  logger,
		timeout: timeout,
		subs:    []hookSubscription{},
	}
}

func (epub *ScriptedEventBroker) Subscribe(event, script string, mandatory bool) {
	epub.subs = append(epub.subs, hookSubscription{
		Event:     event,
		Script:    script,
		Mandatory: mandatory,
	})
}

func eventEnv(event compute.Event) []string {
	env := []string{}
	for key, value := range event.Plain() {
		env = append(env, EnvPrefix+strings.ToUpper(key)+"="+value)
	}
	sort.Strings(env)
	return env
}

func (epub *ScriptedEventBroker) run(sub hookSubscription, env []string) ([]byte, error) {
	ctx := context.Background()
	if epub.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, epub.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", sub.Script)
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

func (epub *ScriptedEventBroker) Publish(event compute.Event) error {
	env := eventEnv(event)
	for _, sub := range epub.subs {
		if !sub.matches(event) {
			continue
		}
		logger := epub.logger.With().
			Str("script", sub.Script).
			Str("event", event.Name()).
			Logger()
		logger.Info().Msg("running hook")

		out, err := epub.run(sub, env)
		if err == nil {
			logger.Debug().Str("out", string(out)).Msg("hook finished")
			continue
		}
		if sub.Mandatory {
			return util.NewError(err, "mandatory hook failed: %s", strings.TrimSpace(string(out)))
		}
		logger.Warn().Err(err).Str("out", string(out)).Msg("hook failed")
	}
	return nil
}
