package round

// Presenter receives a snapshot after every transition. It is called with
// the sequencer locked, so it must not block or call back into the
// sequencer; user input goes through a Gate.
type Presenter interface {
	Present(snapshot Snapshot)
}

type PresenterFunc func(snapshot Snapshot)

func (f PresenterFunc) Present(snapshot Snapshot) { f(snapshot) }

// Presenters fans a snapshot out to several presenters.
type Presenters []Presenter

func (p Presenters) Present(snapshot Snapshot) {
	for _, presenter := range p {
		presenter.Present(snapshot)
	}
}

var noPresenter Presenter = PresenterFunc(func(Snapshot) {})
