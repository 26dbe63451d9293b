package reconcile

import "histosync/internal/dataset"

// Snapshot is one consistent view of every role. It is discarded after each
// unit of work.
type Snapshot struct {
	RemoteOriginals   dataset.Set
	LocalOriginals    dataset.Set
	LocalDownsamples  dataset.Set
	RemoteDownsamples dataset.Set
	ErrorFiles        dataset.Set

	processed               dataset.Set
	originalsToDownsample   dataset.Set
	originalsToDownload     dataset.Set
	originalsReadyToProcess dataset.Set
	downsamplesToUpload     dataset.Set
	downsamplesToDownload   dataset.Set
}

// NewSnapshot derives queues from explicit role sets. Error-listed basenames
// are given as plain names because they need not exist anywhere.
func NewSnapshot(remoteOriginals, localOriginals, localDownsamples, remoteDownsamples dataset.Set, errorFiles map[string]struct{}) *Snapshot {
	return newSnapshot(remoteOriginals, localOriginals, localDownsamples, remoteDownsamples, errorFiles)
}

func newSnapshot(remoteOriginals, localOriginals, localDownsamples, remoteDownsamples dataset.Set, listed map[string]struct{}) *Snapshot {
	errorFiles := make(dataset.Set, len(listed))
	for basename := range listed {
		img, err := dataset.ParseImage(basename)
		if err != nil {
			img = dataset.ImageFile{Basename: basename}
		}
		img.Basename = basename
		errorFiles[basename] = img
	}

	s := &Snapshot{
		RemoteOriginals:   orEmpty(remoteOriginals),
		LocalOriginals:    orEmpty(localOriginals),
		LocalDownsamples:  orEmpty(localDownsamples),
		RemoteDownsamples: orEmpty(remoteDownsamples),
		ErrorFiles:        errorFiles,
	}
	s.processed = s.LocalDownsamples.Union(s.ErrorFiles)
	s.originalsToDownsample = s.RemoteOriginals.Minus(s.processed)
	s.originalsToDownload = s.originalsToDownsample.Minus(s.LocalOriginals)
	s.originalsReadyToProcess = s.LocalOriginals.Minus(s.ErrorFiles)
	s.downsamplesToUpload = s.LocalDownsamples.Minus(s.RemoteDownsamples)
	s.downsamplesToDownload = s.RemoteDownsamples.Minus(s.LocalDownsamples)
	return s
}

// Processed is localDownsamples ∪ errorFiles.
func (s *Snapshot) Processed() []dataset.ImageFile { return s.processed.Sorted() }

// OriginalsToDownsample is remoteOriginals − processed.
func (s *Snapshot) OriginalsToDownsample() []dataset.ImageFile {
	return s.originalsToDownsample.Sorted()
}

// OriginalsToDownload is originalsToDownsample − localOriginals.
func (s *Snapshot) OriginalsToDownload() []dataset.ImageFile {
	return s.originalsToDownload.Sorted()
}

// OriginalsReadyToProcess is localOriginals − errorFiles.
func (s *Snapshot) OriginalsReadyToProcess() []dataset.ImageFile {
	return s.originalsReadyToProcess.Sorted()
}

// DownsamplesToUpload is localDownsamples − remoteDownsamples.
func (s *Snapshot) DownsamplesToUpload() []dataset.ImageFile {
	return s.downsamplesToUpload.Sorted()
}

// DownsamplesToDownload is remoteDownsamples − localDownsamples.
func (s *Snapshot) DownsamplesToDownload() []dataset.ImageFile {
	return s.downsamplesToDownload.Sorted()
}

// Counts summarises the snapshot for status output.
type Counts struct {
	RemoteOriginals         int
	LocalOriginals          int
	LocalDownsamples        int
	RemoteDownsamples       int
	ErrorFiles              int
	OriginalsToDownsample   int
	OriginalsToDownload     int
	OriginalsReadyToProcess int
	DownsamplesToUpload     int
	DownsamplesToDownload   int
}

// Counts returns the size of every role and queue.
func (s *Snapshot) Counts() Counts {
	return Counts{
		RemoteOriginals:         len(s.RemoteOriginals),
		LocalOriginals:          len(s.LocalOriginals),
		LocalDownsamples:        len(s.LocalDownsamples),
		RemoteDownsamples:       len(s.RemoteDownsamples),
		ErrorFiles:              len(s.ErrorFiles),
		OriginalsToDownsample:   len(s.originalsToDownsample),
		OriginalsToDownload:     len(s.originalsToDownload),
		OriginalsReadyToProcess: len(s.originalsReadyToProcess),
		DownsamplesToUpload:     len(s.downsamplesToUpload),
		DownsamplesToDownload:   len(s.downsamplesToDownload),
	}
}

func orEmpty(set dataset.Set) dataset.Set {
	if set == nil {
		return dataset.Set{}
	}
	return set
}
