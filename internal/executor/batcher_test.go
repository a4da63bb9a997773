package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapebench/internal/scrape"
)

func TestSplitTwelveByFive(t *testing.T) {
	t.Parallel()

	urls := urlList(12)
	batches, err := Split(urls, 5)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 5)
	require.Len(t, batches[1], 5)
	require.Len(t, batches[2], 2)
	require.Equal(t, scrape.Batch(urls[5:10]), batches[1])
}

func TestSplitPartitionsExactly(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 20; n++ {
		for size := 1; size <= 7; size++ {
			urls := urlList(n)
			batches, err := Split(urls, size)
			require.NoError(t, err)
			require.Len(t, batches, (n+size-1)/size)

			var joined []string
			for i, b := range batches {
				require.NotEmpty(t, b)
				require.LessOrEqual(t, len(b), size)
				if i < len(batches)-1 {
					require.Len(t, b, size)
				}
				joined = append(joined, b...)
			}
			require.Equal(t, len(urls), len(joined))
			for i := range urls {
				require.Equal(t, urls[i], joined[i])
			}
		}
	}
}

func TestSplitEmptyInput(t *testing.T) {
	t.Parallel()

	batches, err := Split(nil, 5)
	require.NoError(t, err)
	require.NotNil(t, batches)
	require.Empty(t, batches)
}

func TestSplitRejectsNonPositiveSize(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, -1} {
		_, err := Split(urlList(3), size)
		require.ErrorIs(t, err, scrape.ErrInvalidArgument)
	}
}

func TestSplitBatchesDoNotAlias(t *testing.T) {
	t.Parallel()

	urls := urlList(4)
	batches, err := Split(urls, 2)
	require.NoError(t, err)
	batches[0] = append(batches[0], "https://appended.example")
	require.Equal(t, "https://site02.example", urls[2])
}
